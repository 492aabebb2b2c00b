package management

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
)

// Config is what a command receives when it runs.
type Config struct {
	// Flags holds the parsed command flags.
	Flags        *pflag.FlagSet
	// Args are the positional arguments.
	Args         []string
	// ExtraArgs are the unknown flags kept for KeepExtraArgs commands.
	ExtraArgs    []string
	// Subcommand is set when the command runs as a subcommand.
	Subcommand   string
	// Project is the active project, nil for general commands.
	Project      *registry.Config
	// Runtime gives access to the registries.
	Runtime      *Runtime
	// InvocationID identifies this run in logs and traces.
	InvocationID string

	Out *terminal.Writer
	Err *terminal.Writer

	tmpOnce sync.Once
	tmpDir  string
	tmpErr  error
}

// GetOption returns the value of the flag named name. "subcommand" returns
// the dispatched subcommand name. An unknown option yields nil, the default
// given with config.WithDefault, or ErrOptionNotFound under config.Strict.
func (c *Config) GetOption(name string, opts ...config.LookupOption) (any, error) {
	if name == "subcommand" && c.Subcommand != "" {
		return c.Subcommand, nil
	}
	if c.Flags == nil {
		return config.ResolveMissing(ErrOptionNotFound, name, opts...)
	}
	f := c.Flags.Lookup(name)
	if f == nil {
		return config.ResolveMissing(ErrOptionNotFound, name, opts...)
	}
	switch f.Value.Type() {
	case "bool":
		return c.Flags.GetBool(name)
	case "int":
		return c.Flags.GetInt(name)
	case "count":
		return c.Flags.GetCount(name)
	case "duration":
		return c.Flags.GetDuration(name)
	case "stringSlice":
		return c.Flags.GetStringSlice(name)
	case "stringArray":
		return c.Flags.GetStringArray(name)
	default:
		return f.Value.String(), nil
	}
}

// TempDir returns a directory created on first use and removed by Cleanup.
func (c *Config) TempDir() (string, error) {
	c.tmpOnce.Do(func() {
		c.tmpDir, c.tmpErr = os.MkdirTemp("", "socon-")
		if c.tmpErr != nil {
			c.tmpErr = fmt.Errorf("create temp dir: %w", c.tmpErr)
		}
	})
	return c.tmpDir, c.tmpErr
}

// Cleanup removes the temp dir if one was created.
func (c *Config) Cleanup() error {
	if c.tmpDir == "" {
		return nil
	}
	return os.RemoveAll(c.tmpDir)
}
