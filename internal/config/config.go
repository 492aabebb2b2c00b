// Package config provides the tool configuration and the layered framework
// settings for socon.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
)

// Config holds the tool configuration loaded from config.yaml.
type Config struct {
	SettingsModule string          `mapstructure:"settings_module"`
	SourcePaths    []string        `mapstructure:"source_paths"`
	Debug          bool            `mapstructure:"debug"`
	LogFile        string          `mapstructure:"log_file"`
	LogLevel       string          `mapstructure:"log_level"` // debug, info (default), warn, error
	Cache          CacheConfig     `mapstructure:"cache"`
	Watch          WatchConfig     `mapstructure:"watch"`
	Tracing        TracingConfig   `mapstructure:"tracing"`
	Flags          map[string]bool `mapstructure:"flags"`
}

// CacheConfig controls the import cache for disk modules.
type CacheConfig struct {
	// TTL is how long an imported disk module is reused. Negative disables
	// caching.
	TTL time.Duration `mapstructure:"ttl"`
}

// WatchConfig controls `check --watch`.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/socon/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultTracesFilePath returns ~/.config/socon/traces/traces.jsonl, or an
// empty string if the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "socon", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		SourcePaths: []string{"."},
		LogFile:     "debug.log",
		LogLevel:    "info",
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{},
	}
}

// Validate checks the whole configuration and reports every problem found.
func Validate(cfg Config) error {
	var errs []error
	if cfg.SettingsModule != "" && !module.ValidPath(cfg.SettingsModule) {
		errs = append(errs, fmt.Errorf("settings_module %q is not a dotted module path", cfg.SettingsModule))
	}
	for i, p := range cfg.SourcePaths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("source_paths[%d] is empty", i))
		}
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", cfg.LogLevel))
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce))
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# socon configuration

# Dotted path of the settings module (overridden by SOCON_SETTINGS_MODULE
# and --settings). Leave empty to run without settings.
# settings_module: mysettings

# Directories searched for projects, plugins and settings modules.
source_paths:
  - .

# Debug logging (also enabled by SOCON_DEBUG=1)
debug: false
log_file: debug.log
log_level: info   # debug, info, warn, error

# Imported disk modules are reused for this long. Negative disables the cache.
cache:
  ttl: 10m

# Quiet period before "check --watch" re-runs after a change.
watch:
  debounce: 300ms

# Distributed tracing of registry population and command execution.
tracing:
  enabled: false
  exporter: file        # none, file, stdout, otlp
  # file_path: ~/.config/socon/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Feature flags
# flags:
#   script-commands: true
#   import-cache: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
