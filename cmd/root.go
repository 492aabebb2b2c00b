package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/socon/internal/app"
	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/paths"
	"github.com/zjrosen/socon/internal/terminal"
)

var version = "dev"

// EnvDebug turns on debug logging like --debug.
const EnvDebug = "SOCON_DEBUG"

// ExitError carries the exit code of a management command that failed. The
// command has already reported the failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// toolFlags are the flags of the socon binary itself, as opposed to the
// flags of the management commands it dispatches to.
type toolFlags struct {
	config string
	debug  bool
}

var rootFlags toolFlags

var rootCmd = newRootCmd(&rootFlags)

func newRootCmd(tf *toolFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "socon [--config FILE] [--debug] COMMAND [ARGS]",
		Short: "Run the management commands of a socon workspace",
		Long: `Run the management commands of a socon workspace.

Commands are resolved across the installed plugins, projects and common
units. Run "socon help" for the commands available with the current settings,
and "socon help COMMAND" for the usage of one of them.`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUtility(cmd, args)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	// Parsed by hand in runUtility; declared so cobra can tell them apart from
	// subcommand names.
	root.PersistentFlags().StringVarP(&tf.config, "config", "c", "",
		"config file (default: .socon/config.yaml, then ~/.config/socon/config.yaml)")
	root.PersistentFlags().BoolVar(&tf.debug, "debug", false,
		"write debug logs to log_file (or set "+EnvDebug+")")

	root.SetHelpCommand(&cobra.Command{
		Use:                "help [COMMAND]",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUtility(cmd, append([]string{"help"}, args...))
		},
	})
	root.AddCommand(newRegistryListCmd(tf))
	return root
}

// splitToolFlags removes the leading tool flags from args. Scanning stops at
// the first positional argument, which names the management command, so
// command flags such as -c are left alone.
func splitToolFlags(args []string) (toolFlags, []string, error) {
	var tf toolFlags
	rest := make([]string, 0, len(args))
	i := 0
scan:
	for ; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			break scan
		case a == "--debug":
			tf.debug = true
		case a == "--config" || a == "-c":
			if i+1 >= len(args) {
				return tf, nil, fmt.Errorf("flag needs an argument: %s", a)
			}
			i++
			tf.config = args[i]
		case strings.HasPrefix(a, "--config="):
			tf.config = strings.TrimPrefix(a, "--config=")
		case a == "--settings" || a == "--project":
			rest = append(rest, a)
			if i+1 < len(args) {
				i++
				rest = append(rest, args[i])
			}
		case strings.HasPrefix(a, "-"):
			rest = append(rest, a)
		default:
			break scan
		}
	}
	return tf, append(rest, args[i:]...), nil
}

// loadConfig reads the tool config. An explicit path must exist. Otherwise
// .socon/config.yaml is looked up from dir upwards, then in the user config
// directory; when neither exists a default config is written under dir.
// The returned base directory resolves relative source_paths.
func loadConfig(path, dir string) (config.Config, string, error) {
	var cfg config.Config
	v := viper.New()
	v.SetEnvPrefix("SOCON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := config.Defaults()
	v.SetDefault("settings_module", defaults.SettingsModule)
	v.SetDefault("source_paths", defaults.SourcePaths)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("flags", defaults.Flags)

	base := dir
	switch found, ok := paths.FindProjectConfig(dir); {
	case path != "":
		v.SetConfigFile(path)
	case ok:
		v.SetConfigFile(found)
		base = filepath.Dir(filepath.Dir(found))
	default:
		v.AddConfigPath(paths.UserConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return cfg, "", fmt.Errorf("reading config: %w", err)
		}
		defaultPath := paths.ProjectConfigPath(dir)
		if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
			v.SetConfigFile(defaultPath)
			_ = v.ReadInConfig()
		}
		// If write fails, just continue with defaults (no config file)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, "", fmt.Errorf("decoding config: %w", err)
	}
	log.Debug(log.CatConfig, "tool config loaded", "file", v.ConfigFileUsed(), "base", base)
	return cfg, base, nil
}

// prepare loads the tool config for the working directory, turns on logging
// when asked and exports the default settings module. The returned func
// closes the log file.
func prepare(tf toolFlags) (config.Config, string, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, "", nil, fmt.Errorf("getting current directory: %w", err)
	}
	cfg, base, err := loadConfig(tf.config, cwd)
	if err != nil {
		return cfg, "", nil, err
	}

	cleanup := func() {}
	if tf.debug || cfg.Debug {
		closeLog, err := log.Init(cfg.LogFile)
		if err != nil {
			return cfg, "", nil, fmt.Errorf("opening log file: %w", err)
		}
		log.SetMinLevel(log.ParseLevel(cfg.LogLevel))
		cleanup = closeLog
	}

	if cfg.SettingsModule != "" && os.Getenv(config.EnvSettingsModule) == "" {
		_ = os.Setenv(config.EnvSettingsModule, cfg.SettingsModule)
	}
	return cfg, base, cleanup, nil
}

func runUtility(cmd *cobra.Command, args []string) error {
	tf, rest, err := splitToolFlags(args)
	if err != nil {
		return err
	}
	cfg, base, cleanup, err := prepare(tf)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, app.Options{Config: cfg, BaseDir: base})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	u := a.Utility("socon", version)
	u.Out = terminal.New(cmd.OutOrStdout())
	u.Err = terminal.New(cmd.ErrOrStderr())
	if code := u.Execute(ctx, rest); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
