package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/smartcard-connector/format-code/build"
	"github.com/smartcard-connector/format-code/cmd/format"
	"github.com/smartcard-connector/format-code/config"
	"github.com/smartcard-connector/format-code/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRoot() (*cobra.Command, *stats.Stats) {
	var configFile string

	// create a viper instance for reading in config
	v := config.NewViper()

	// create a new stats instance
	statz := stats.New()

	// create our root command
	cmd := &cobra.Command{
		Use:     build.Name,
		Short:   "Runs clang-format on the C++/JS files changed in the repository",
		Version: build.Version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runE(v, &statz, cmd, configFile)
		},
	}

	// update version template
	cmd.SetVersionTemplate(build.Name + " {{.Version}}\n")

	fs := cmd.Flags()

	// add our config flags to the command's flag set
	config.SetFlags(fs)

	// add a special flag which doesn't have a corresponding entry in the config file
	fs.StringVar(
		&configFile, "config-file", "",
		"Load the config file from the given path (defaults to searching upwards for .format-code.toml, then "+
			"format-code/config.toml in the XDG config directories). (env $FORMAT_CODE_CONFIG)",
	)

	// bind our command's flags to viper
	if err := v.BindPFlags(fs); err != nil {
		cobra.CheckErr(fmt.Errorf("failed to bind global config to viper: %w", err))
	}

	return cmd, &statz
}

func runE(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command, configFile string) error {
	// usage is only useful for flag parsing errors
	cmd.SilenceUsage = true

	// change working directory if required
	workingDir, err := filepath.Abs(v.GetString("working-dir"))
	if err != nil {
		return fmt.Errorf("failed to get absolute path for working directory: %w", err)
	} else if err = os.Chdir(workingDir); err != nil {
		return fmt.Errorf("failed to change working directory: %w", err)
	}

	// pin the resolved directory so relative paths are not resolved a second time
	v.Set("working-dir", workingDir)

	// a config file is optional
	if configFile = config.Locate(configFile, workingDir); configFile != "" {
		log.Debugf("using config file: %s", configFile)

		v.SetConfigFile(configFile)

		if err = v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file '%s': %w", configFile, err)
		}
	}

	// configure logging
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)

	if v.GetBool("quiet") {
		// if quiet, we only log errors
		log.SetLevel(log.ErrorLevel)
	} else {
		// otherwise, the verbose flag controls the log level
		switch v.GetInt("verbose") {
		case 0:
			log.SetLevel(log.WarnLevel)
		case 1:
			log.SetLevel(log.InfoLevel)
		default:
			log.SetLevel(log.DebugLevel)
		}
	}

	// format
	return format.Run(v, statz, cmd) //nolint:wrapcheck
}
