package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// inPlaceFlag asks the formatter to rewrite the file rather than print the result.
const inPlaceFlag = "-i"

var (
	// ErrCommandNotFound is returned when the formatter executable is not available.
	ErrCommandNotFound = errors.New("formatter command not found in PATH")
	// ErrFormatFailed is returned when the formatter ran but exited with a non-zero status.
	ErrFormatFailed = errors.New("formatter failed")
	// ErrLaunch is returned when the formatter process could not be started.
	ErrLaunch = errors.New("failed to launch formatter")
)

// Formatter runs an external formatter against a single file, rewriting it in place.
// The executable is looked up on first use, so a run with nothing to format never needs it.
type Formatter struct {
	command    string
	options    []string
	workingDir string
	env        expand.Environ

	resolveOnce sync.Once
	executable  string // path to the executable described by command
	resolveErr  error

	stdout io.Writer
	stderr io.Writer

	log *log.Logger
}

// Executable returns the path to the executable defined by command, resolving it against the PATH on first call.
func (f *Formatter) Executable() (string, error) {
	f.resolveOnce.Do(func() {
		executable, err := interp.LookPathDir(f.workingDir, f.env, f.command)
		if err != nil {
			f.resolveErr = fmt.Errorf("%w: %s", ErrCommandNotFound, f.command)

			return
		}

		f.log.Debugf("resolved %s to %s", f.command, executable)
		f.executable = executable
	})

	return f.executable, f.resolveErr
}

// Format invokes `<executable> -i <options...> <path>`.
// Output from the formatter is passed through untouched.
func (f *Formatter) Format(ctx context.Context, path string) error {
	executable, err := f.Executable()
	if err != nil {
		return err
	}

	args := make([]string, 0, len(f.options)+2)
	args = append(args, inPlaceFlag)
	args = append(args, f.options...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec
	// replace the default Cancel handler installed by CommandContext because it sends SIGKILL (-9).
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.Dir = f.workingDir
	cmd.Stdout = f.stdout
	cmd.Stderr = f.stderr

	f.log.Debugf("executing: %s", cmd.String())

	if err = cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// the formatter reports its own diagnostics
			f.log.Debugf("failed to format %s: %s", path, err)

			return fmt.Errorf("%w: '%s' exited with status %d for %s", ErrFormatFailed, f.command, exitErr.ExitCode(), path)
		}

		return fmt.Errorf("%w: '%s': %w", ErrLaunch, executable, err)
	}

	return nil
}

// NewFormatter creates a Formatter which resolves command against the PATH in env, relative to workingDir.
func NewFormatter(command string, options []string, workingDir string, env expand.Environ) *Formatter {
	return &Formatter{
		command:    command,
		options:    options,
		workingDir: workingDir,
		env:        env,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		log:        log.WithPrefix("format | " + command),
	}
}
