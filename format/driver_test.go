package format_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/smartcard-connector/format-code/discover"
	"github.com/smartcard-connector/format-code/format"
	"github.com/smartcard-connector/format-code/stats"
	"github.com/stretchr/testify/require"
)

var masks = []string{"*.cc", "*.h", "*.js"}

type fakeDiscoverer struct {
	paths []string
	err   error

	bases []string
	masks [][]string
}

func (f *fakeDiscoverer) Discover(_ context.Context, base string, masks []string) ([]string, error) {
	f.bases = append(f.bases, base)
	f.masks = append(f.masks, masks)

	return f.paths, f.err
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string

	// paths for which the formatter exits non-zero
	fail map[string]bool
	// paths for which the formatter cannot be started
	unlaunchable map[string]bool
	// optional side effect applied on success
	apply func(path string) error
}

func (r *recordingRunner) Format(_ context.Context, path string) error {
	r.mu.Lock()
	r.calls = append(r.calls, path)
	r.mu.Unlock()

	switch {
	case r.unlaunchable[path]:
		return fmt.Errorf("%w: exec: no such file or directory", format.ErrLaunch)
	case r.fail[path]:
		return fmt.Errorf("%w: exited with status 1 for %s", format.ErrFormatFailed, path)
	case r.apply != nil:
		return r.apply(path)
	default:
		return nil
	}
}

func newDriver(discoverer format.Discoverer, runner format.Runner, statz *stats.Stats, jobs int) *format.Driver {
	return format.NewDriver(discoverer, runner, statz, "", jobs, log.DebugLevel)
}

func newStats() *stats.Stats {
	statz := stats.New()

	return &statz
}

func newTreeDriver(discoverer format.Discoverer, runner format.Runner, statz *stats.Stats, treeRoot string) *format.Driver {
	return format.NewDriver(discoverer, runner, statz, treeRoot, 1, log.DebugLevel)
}

func TestDriver(t *testing.T) {
	ctx := context.Background()

	t.Run("no files", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{}
		runner := &recordingRunner{}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.NoError(err)
		as.Empty(result.Paths)
		as.Empty(runner.calls)
		as.Equal([]string{"main"}, discoverer.bases)
		as.Equal([][]string{masks}, discoverer.masks)
	})

	t.Run("all succeed", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "c.js"}}
		runner := &recordingRunner{}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.NoError(err)
		as.Equal([]string{"a.cc", "b.h", "c.js"}, runner.calls)
		as.Empty(result.Failed)
		as.Equal(int32(3), statz.Value(stats.Discovered))
		as.Equal(int32(3), statz.Value(stats.Formatted))
		as.Equal(int32(0), statz.Value(stats.Failed))
	})

	t.Run("last file fails", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "c.js"}}
		runner := &recordingRunner{fail: map[string]bool{"c.js": true}}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.ErrorIs(err, format.ErrFormattingFailures)
		as.Equal([]string{"a.cc", "b.h", "c.js"}, runner.calls)
		as.Equal([]string{"c.js"}, result.Failed)
		as.Equal(int32(2), statz.Value(stats.Formatted))
		as.Equal(int32(1), statz.Value(stats.Failed))
	})

	t.Run("failures do not short-circuit", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "c.js", "d.cc"}}
		runner := &recordingRunner{fail: map[string]bool{"a.cc": true, "c.js": true}}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.ErrorIs(err, format.ErrFormattingFailures)
		as.Equal([]string{"a.cc", "b.h", "c.js", "d.cc"}, runner.calls)
		as.Equal([]string{"a.cc", "c.js"}, result.Failed)
	})

	t.Run("discovery failure", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{
			paths: []string{"a.cc"},
			err:   fmt.Errorf("%w: 'find-files' exited with status 2", discover.ErrDiscoveryFailed),
		}
		runner := &recordingRunner{}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.ErrorIs(err, discover.ErrDiscoveryFailed)
		as.NotErrorIs(err, format.ErrFormattingFailures)
		as.Nil(result)
		as.Empty(runner.calls)
	})

	t.Run("base is passed through", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{}

		_, err := newDriver(discoverer, &recordingRunner{}, &statz, 1).Run(ctx, discover.BaseNone, masks)
		as.NoError(err)
		as.Equal([]string{"none"}, discoverer.bases)
	})

	t.Run("launch failure aborts", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "c.js"}}
		runner := &recordingRunner{unlaunchable: map[string]bool{"b.h": true}}

		_, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.ErrorIs(err, format.ErrLaunch)
		as.NotErrorIs(err, format.ErrFormattingFailures)
		as.Equal([]string{"a.cc", "b.h"}, runner.calls)
	})

	t.Run("launch failure on the first file", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "c.js"}}
		runner := &recordingRunner{unlaunchable: map[string]bool{"a.cc": true}}

		result, err := newDriver(discoverer, runner, &statz, 1).Run(ctx, "main", masks)
		as.ErrorIs(err, format.ErrLaunch)
		as.Equal([]string{"a.cc"}, runner.calls)
		as.Empty(result.Failed)
		as.Equal(int32(0), statz.Value(stats.Formatted))
	})

	t.Run("cancelled", func(t *testing.T) {
		as := require.New(t)

		statz := stats.New()
		discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h"}}
		runner := &recordingRunner{}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newDriver(discoverer, runner, &statz, 1).Run(cancelled, "main", masks)
		as.ErrorIs(err, context.Canceled)
	})
}

func TestDriverJobs(t *testing.T) {
	as := require.New(t)

	var paths []string

	fail := make(map[string]bool)

	for i := range 64 {
		path := "file" + strconv.Itoa(i) + ".cc"
		paths = append(paths, path)

		if i%10 == 3 {
			fail[path] = true
		}
	}

	statz := stats.New()
	discoverer := &fakeDiscoverer{paths: paths}
	runner := &recordingRunner{fail: fail}

	result, err := newDriver(discoverer, runner, &statz, 8).Run(context.Background(), "main", masks)
	as.ErrorIs(err, format.ErrFormattingFailures)

	// every file is attempted exactly once, in any order
	as.ElementsMatch(paths, runner.calls)

	// failures are still reported in discovery order
	as.Equal([]string{
		"file3.cc", "file13.cc", "file23.cc", "file33.cc", "file43.cc", "file53.cc", "file63.cc",
	}, result.Failed)
	as.Equal(int32(57), statz.Value(stats.Formatted))
	as.Equal(int32(7), statz.Value(stats.Failed))
}

func TestDriverChanges(t *testing.T) {
	as := require.New(t)

	treeRoot := t.TempDir()

	for _, name := range []string{"a.cc", "b.h"} {
		as.NoError(os.WriteFile(filepath.Join(treeRoot, name), []byte("int x;\n"), 0o600))
	}

	statz := stats.New()
	discoverer := &fakeDiscoverer{paths: []string{"a.cc", "b.h", "missing.js"}}
	runner := &recordingRunner{
		apply: func(path string) error {
			if path != "a.cc" {
				return nil
			}

			return os.WriteFile(filepath.Join(treeRoot, path), []byte("int x = 0;\n"), 0o600)
		},
	}

	driver := newTreeDriver(discoverer, runner, &statz, treeRoot)

	result, err := driver.Run(context.Background(), "main", masks)
	as.NoError(err)
	as.Equal([]string{"a.cc"}, result.Changed)
	as.Equal(int32(3), statz.Value(stats.Formatted))
	as.Equal(int32(1), statz.Value(stats.Changed))
}
