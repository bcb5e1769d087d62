package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"
	"github.com/smartcard-connector/format-code/discover"
	"github.com/smartcard-connector/format-code/git"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// BaseNone selects every file in the repository instead of diffing against a ref.
	BaseNone = discover.BaseNone

	DefaultBase      = "main"
	DefaultFormatter = "clang-format"

	// MaxJobs bounds the number of concurrent formatter processes.
	MaxJobs = 256

	configFileName = ".format-code.toml"
)

var (
	ErrEmptyBase   = errors.New("base must not be empty")
	ErrInvalidJobs = fmt.Errorf("jobs must be between 1 and %d", MaxJobs)
	ErrNoMasks     = errors.New("at least one file mask is required")
)

// DefaultMasks returns the file masks selecting C/C++ sources, C/C++ headers and JavaScript files.
func DefaultMasks() []string {
	return []string{"*.cc", "*.h", "*.js"}
}

// DefaultStyle returns the options passed to the formatter ahead of each path.
func DefaultStyle() []string {
	return []string{
		"--style=Chromium",
		"--sort-includes=false",
	}
}

// Config is the fully resolved configuration for a single run.
type Config struct {
	Base            string   `mapstructure:"base" toml:"base,omitempty"`
	Discover        string   `mapstructure:"discover" toml:"discover,omitempty"`
	DiscoverCommand string   `mapstructure:"discover-command" toml:"discover-command,omitempty"`
	FailOnChange    bool     `mapstructure:"fail-on-change" toml:"fail-on-change,omitempty"`
	Formatter       string   `mapstructure:"formatter" toml:"formatter,omitempty"`
	Jobs            int      `mapstructure:"jobs" toml:"jobs,omitempty"`
	Masks           []string `mapstructure:"masks" toml:"masks,omitempty"`
	Quiet           bool     `mapstructure:"quiet" toml:"quiet,omitempty"`
	Style           []string `mapstructure:"style" toml:"style,omitempty"`
	TreeRoot        string   `mapstructure:"tree-root" toml:"tree-root,omitempty"`
	Verbose         uint8    `mapstructure:"verbose" toml:"verbose,omitempty"`

	WorkingDirectory string `mapstructure:"working-dir" toml:"-"` // not allowed in config
}

// SetFlags appends our flags to the provided flag set.
// Flag names match the mapstructure tags in Config so viper can resolve flag, env and config file values together.
func SetFlags(fs *pflag.FlagSet) {
	fs.String(
		"base", DefaultBase,
		"Git ref to diff against, or \"none\" if the whole repository is to be reformatted. (env $FORMAT_CODE_BASE)",
	)
	fs.String(
		"discover", "auto",
		"The method used to discover files to format. Currently supports <auto|command|git>. "+
			"(env $FORMAT_CODE_DISCOVER)",
	)
	fs.String(
		"discover-command", "",
		"An executable invoked as '<command> --base <ref> <masks...>' which prints one path per line. "+
			"(env $FORMAT_CODE_DISCOVER_COMMAND)",
	)
	fs.Bool(
		"fail-on-change", false,
		"Exit with error if any changes were made. Useful for CI. (env $FORMAT_CODE_FAIL_ON_CHANGE)",
	)
	fs.String(
		"formatter", DefaultFormatter,
		"The formatter executable applied to each file. (env $FORMAT_CODE_FORMATTER)",
	)
	fs.IntP(
		"jobs", "j", 1,
		"The maximum number of formatter processes to run at once. (env $FORMAT_CODE_JOBS)",
	)
	fs.BoolP(
		"quiet", "q", false,
		"Only log errors and do not print a summary. (env $FORMAT_CODE_QUIET)",
	)
	fs.String(
		"tree-root", "",
		"The directory in which the discovery helper and formatter are run (defaults to the root of the git "+
			"worktree, or the working directory outside of one). (env $FORMAT_CODE_TREE_ROOT)",
	)
	fs.CountP(
		"verbose", "v",
		"Set the verbosity of logs e.g. -vv. (env $FORMAT_CODE_VERBOSE)",
	)
	fs.StringP(
		"working-dir", "C", ".",
		"Run as if format-code was started in the specified working directory instead of the current working "+
			"directory. (env $FORMAT_CODE_WORKING_DIR)",
	)
}

// NewViper creates a Viper instance pre-configured with the following options:
// * TOML config type
// * automatic env enabled
// * `FORMAT_CODE_` env prefix for environment variables
// * replacement of `-` with `_` when mapping flags to env e.g. `fail-on-change` => `FORMAT_CODE_FAIL_ON_CHANGE`
// * default masks and style options.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigType("toml")

	v.SetEnvPrefix("format_code")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("masks", DefaultMasks())
	v.SetDefault("style", DefaultStyle())

	return v
}

// FromViper takes a viper instance and produces a validated Config instance.
func FromViper(v *viper.Viper) (*Config, error) {
	// working-dir is only honoured from flags and env
	if err := v.MergeConfigMap(map[string]any{"working-dir": "."}); err != nil {
		return nil, fmt.Errorf("failed to overwrite config values: %w", err)
	}

	var err error

	cfg := &Config{}

	if err = v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.WorkingDirectory, err = filepath.Abs(cfg.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for working directory: %w", err)
	}

	cfg.Base = strings.TrimSpace(cfg.Base)
	if cfg.Base == "" {
		return nil, ErrEmptyBase
	}

	if cfg.Formatter == "" {
		cfg.Formatter = DefaultFormatter
	}

	// default if it isn't set (e.g. in tests when using Config directly)
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}

	if cfg.Jobs < 1 || cfg.Jobs > MaxJobs {
		return nil, ErrInvalidJobs
	}

	if len(cfg.Masks) == 0 {
		return nil, ErrNoMasks
	}

	for _, mask := range cfg.Masks {
		if _, err = glob.Compile(mask); err != nil {
			return nil, fmt.Errorf("failed to compile mask '%v': %w", mask, err)
		}
	}

	if cfg.TreeRoot == "" {
		cfg.TreeRoot, err = treeRoot(cfg.WorkingDirectory)
		if err != nil {
			return nil, err
		}
	} else if !filepath.IsAbs(cfg.TreeRoot) {
		cfg.TreeRoot = filepath.Join(cfg.WorkingDirectory, cfg.TreeRoot)
	}

	l := log.WithPrefix("config")
	l.Debugf("base = %s", cfg.Base)
	l.Debugf("tree root = %s", cfg.TreeRoot)
	l.Debugf("masks = %v", cfg.Masks)
	l.Debugf("style = %v", cfg.Style)

	return cfg, nil
}

// treeRoot defaults to the top of the enclosing git worktree, falling back to dir.
func treeRoot(dir string) (string, error) {
	inside, err := git.IsInsideWorktree(dir)
	if err != nil {
		log.Debugf("failed to detect git worktree: %v", err)

		return dir, nil
	} else if !inside {
		return dir, nil
	}

	root, err := git.TreeRoot(dir)
	if err != nil {
		return "", fmt.Errorf("failed to determine tree root: %w", err)
	}

	return root, nil
}

// Locate returns the config file to load, or an empty string if there is none.
// An explicit path wins, followed by $FORMAT_CODE_CONFIG, a .format-code.toml found searching upwards from
// workingDir, and finally format-code/config.toml in the XDG config directories.
func Locate(explicit string, workingDir string) string {
	if explicit != "" {
		return explicit
	}

	if env := os.Getenv("FORMAT_CODE_CONFIG"); env != "" {
		return env
	}

	if path, _, err := FindUp(workingDir, configFileName); err == nil {
		return path
	}

	if path, err := xdg.SearchConfigFile(filepath.Join("format-code", "config.toml")); err == nil {
		return path
	}

	return ""
}

func FindUp(searchDir string, fileNames ...string) (path string, dir string, err error) {
	for _, dir := range eachDir(searchDir) {
		for _, f := range fileNames {
			path := filepath.Join(dir, f)
			if fileExists(path) {
				return path, dir, nil
			}
		}
	}

	return "", "", fmt.Errorf("could not find %s in %s", fileNames, searchDir)
}

func eachDir(path string) (paths []string) {
	path, err := filepath.Abs(path)
	if err != nil {
		return
	}

	paths = []string{path}

	if path == "/" {
		return
	}

	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == os.PathSeparator {
			path = path[:i]
			if path == "" {
				path = "/"
			}

			paths = append(paths, path)
		}
	}

	return
}

func fileExists(path string) bool {
	// Some broken filesystems like SSHFS return file information on stat() but
	// then cannot open the file. So we use os.Open.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	// Next, check that the file is a regular file.
	fi, err := f.Stat()
	if err != nil {
		return false
	}

	return fi.Mode().IsRegular()
}
