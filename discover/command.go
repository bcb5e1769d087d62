package discover

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// CommandProvider delegates discovery to an external helper, invoked as `<executable> --base <ref> <masks...>`.
// The helper prints one path per line on stdout. Its stderr is passed through.
type CommandProvider struct {
	executable string
	workingDir string
	stderr     io.Writer

	log *log.Logger
}

// Executable returns the resolved path of the helper.
func (c *CommandProvider) Executable() string {
	return c.executable
}

func (c *CommandProvider) Discover(ctx context.Context, base string, masks []string) ([]string, error) {
	args := append([]string{"--base", base}, masks...)

	cmd := exec.CommandContext(ctx, c.executable, args...) //nolint:gosec
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.Dir = c.workingDir
	cmd.Stderr = c.stderr

	c.log.Debugf("executing: %s", cmd.String())

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: '%s' exited with status %d", ErrDiscoveryFailed, c.executable, exitErr.ExitCode())
		}

		return nil, fmt.Errorf("%w: failed to run '%s': %w", ErrDiscoveryFailed, c.executable, err)
	}

	paths, err := parseLines(out)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read output of '%s': %w", ErrDiscoveryFailed, c.executable, err)
	}

	c.log.Debugf("discovered %d file(s)", len(paths))

	return paths, nil
}

// parseLines returns each non-blank line of out with surrounding whitespace removed.
func parseLines(out []byte) ([]string, error) {
	var paths []string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if path := strings.TrimSpace(scanner.Text()); path != "" {
			paths = append(paths, path)
		}
	}

	return paths, scanner.Err()
}

// NewCommand resolves command against the PATH in env, relative to treeRoot.
func NewCommand(treeRoot string, command string, env expand.Environ) (*CommandProvider, error) {
	executable, err := interp.LookPathDir(treeRoot, env, command)
	if err != nil {
		return nil, fmt.Errorf("%w: discover command '%s' not found: %w", ErrDiscoveryFailed, command, err)
	}

	return &CommandProvider{
		executable: executable,
		workingDir: treeRoot,
		stderr:     os.Stderr,
		log:        log.WithPrefix("discover[command]"),
	}, nil
}
