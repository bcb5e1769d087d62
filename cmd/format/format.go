package format

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/smartcard-connector/format-code/config"
	"github.com/smartcard-connector/format-code/discover"
	"github.com/smartcard-connector/format-code/format"
	"github.com/smartcard-connector/format-code/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/expand"
)

var ErrFailOnChange = errors.New("unexpected changes detected, --fail-on-change is enabled")

func Run(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// create a prefixed logger
	log.SetPrefix("format")

	discoverType, err := discover.TypeString(cfg.Discover)
	if err != nil {
		return err
	}

	env := expand.ListEnviron(os.Environ()...)

	// the formatter executable is only looked up once there is a file to format
	formatter := format.NewFormatter(cfg.Formatter, cfg.Style, cfg.TreeRoot, env)

	provider, err := discover.New(discoverType, cfg.TreeRoot, cfg.DiscoverCommand)
	if err != nil {
		return fmt.Errorf("failed to initialise file discovery: %w", err)
	}

	// create an app context and listen for shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(exit)

		select {
		case <-exit:
			cancel()
		case <-ctx.Done():
		}
	}()

	changeLevel := log.DebugLevel
	if cfg.FailOnChange {
		// surface changed files more obviously
		changeLevel = log.ErrorLevel

		startAfter := time.Now().
			// truncate to second precision
			Truncate(time.Second).
			// add one second
			Add(1 * time.Second).
			// a little extra to ensure we don't start until the next second
			Add(10 * time.Millisecond)

		log.Debugf("waiting until %v before continuing", startAfter)

		// Wait until we tick over into the next second so that our second level mod time comparisons can see a rewrite
		// of a file which was checked out or modified just before we started.
		select {
		case <-time.After(time.Until(startAfter)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	driver := format.NewDriver(provider, formatter, statz, cfg.TreeRoot, cfg.Jobs, changeLevel)

	_, err = driver.Run(ctx, cfg.Base, cfg.Masks)

	// a discovery failure means nothing was attempted, so there is nothing to summarise
	if err != nil && !errors.Is(err, format.ErrFormattingFailures) {
		return err
	}

	if !cfg.Quiet {
		statz.Print(cmd.OutOrStdout())
	}

	if err != nil {
		return err //nolint:wrapcheck
	}

	// if fail on change has been enabled, check that no files were actually changed, throwing an error if so
	if cfg.FailOnChange && statz.Value(stats.Changed) != 0 {
		return ErrFailOnChange
	}

	return nil
}
