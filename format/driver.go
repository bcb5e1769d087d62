package format

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/smartcard-connector/format-code/stats"
	"golang.org/x/sync/errgroup"
)

// ErrFormattingFailures is returned when at least one file could not be formatted.
var ErrFormattingFailures = errors.New("formatting failures detected")

// Discoverer produces the paths to format for a diff base and a set of file masks.
type Discoverer interface {
	Discover(ctx context.Context, base string, masks []string) ([]string, error)
}

// Runner formats a single path in place.
// A non-zero exit of the underlying tool must be reported as an error wrapping ErrFormatFailed; any other error aborts
// the run.
type Runner interface {
	Format(ctx context.Context, path string) error
}

// Result describes the outcome of a run.
type Result struct {
	// Paths is every discovered path, in discovery order.
	Paths []string
	// Failed is the subset of Paths for which the formatter failed, in discovery order.
	Failed []string
	// Changed is the subset of Paths which the formatter modified, in discovery order.
	Changed []string
}

type outcome struct {
	failed  bool
	changed bool
}

// Driver discovers files and formats each of them.
type Driver struct {
	discoverer Discoverer
	runner     Runner
	stats      *stats.Stats

	treeRoot    string
	jobs        int
	changeLevel log.Level

	log *log.Logger
}

// Run discovers the files changed against base which match masks and formats every one of them, even if some fail.
// A discovery error is returned before anything is formatted.
// If any file fails to format, the returned error wraps ErrFormattingFailures.
func (d *Driver) Run(ctx context.Context, base string, masks []string) (*Result, error) {
	start := time.Now()

	paths, err := d.discoverer.Discover(ctx, base, masks)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	d.stats.Add(stats.Discovered, len(paths))

	result := &Result{Paths: paths}

	if len(paths) == 0 {
		d.log.Info("no files to format")

		return result, nil
	}

	d.log.Debugf("formatting %d file(s) with %d job(s)", len(paths), d.jobs)

	outcomes := make([]outcome, len(paths))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.jobs)

	for idx, path := range paths {
		// stop scheduling once a fatal error has occurred or we have been cancelled
		if egCtx.Err() != nil {
			break
		}

		eg.Go(func() error {
			// a fatal error may have occurred while we were waiting for a slot
			if egCtx.Err() != nil {
				return nil
			}

			o, err := d.formatOne(egCtx, path)
			outcomes[idx] = o

			return err
		})
	}

	if err = eg.Wait(); err != nil {
		return result, err
	} else if err = ctx.Err(); err != nil {
		return result, err
	}

	for idx, o := range outcomes {
		if o.failed {
			result.Failed = append(result.Failed, paths[idx])
		}

		if o.changed {
			result.Changed = append(result.Changed, paths[idx])
		}
	}

	d.log.Infof("%d file(s) processed in %v", len(paths), time.Since(start))

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d file(s) failed", ErrFormattingFailures, len(result.Failed), len(paths))
	}

	return result, nil
}

func (d *Driver) formatOne(ctx context.Context, path string) (outcome, error) {
	file := newFile(d.treeRoot, path)

	if err := d.runner.Format(ctx, path); errors.Is(err, ErrFormatFailed) {
		d.stats.Add(stats.Failed, 1)

		return outcome{failed: true}, nil
	} else if err != nil {
		return outcome{}, fmt.Errorf("failed to format %s: %w", path, err)
	}

	d.stats.Add(stats.Formatted, 1)

	changed, newInfo, err := file.Stat()
	if err != nil {
		d.log.Warnf("unable to detect changes: %v", err)

		return outcome{}, nil
	}

	if changed {
		d.stats.Add(stats.Changed, 1)

		d.log.Log(
			d.changeLevel, "file has changed",
			"path", file.RelPath,
			"prev_size", file.Info.Size(),
			"prev_mod_time", file.Info.ModTime().Truncate(time.Second),
			"current_size", newInfo.Size(),
			"current_mod_time", newInfo.ModTime().Truncate(time.Second),
		)
	}

	return outcome{changed: changed}, nil
}

// NewDriver creates a Driver. Paths are resolved against treeRoot for change detection.
// jobs bounds the number of concurrent Format calls; 1 formats files strictly in discovery order.
func NewDriver(
	discoverer Discoverer,
	runner Runner,
	statz *stats.Stats,
	treeRoot string,
	jobs int,
	changeLevel log.Level,
) *Driver {
	if jobs < 1 {
		jobs = 1
	}

	return &Driver{
		discoverer:  discoverer,
		runner:      runner,
		stats:       statz,
		treeRoot:    treeRoot,
		jobs:        jobs,
		changeLevel: changeLevel,
		log:         log.WithPrefix("format"),
	}
}
