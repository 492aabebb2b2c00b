package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
)

// DefaultSettingsModule is where a project declares its own settings,
// relative to the project package.
const DefaultSettingsModule = "management.config"

// Config is one installed unit: a plugin, a project or a common config.
type Config struct {
	name           string
	label          string
	path           string
	kind           Kind
	module         module.Module
	settingsModule string
	importer       module.Importer

	settingsMu   sync.Mutex
	settingsDone bool
	settings     *config.Settings
	settingsErr  error
}

// NewConfig builds a Config from a declaration and the imported unit package.
// Empty fields of decl take their defaults: Name is the module path, Label the
// last segment of Name, Path the module directory.
func NewConfig(kind Kind, decl module.ConfigDecl, mod module.Module, imp module.Importer) *Config {
	name := decl.Name
	if name == "" {
		name = mod.Path
	}
	label := decl.Label
	if label == "" {
		_, label = module.Split(name)
	}
	path := decl.Path
	if path == "" {
		path = mod.Dir
	}
	settingsModule := decl.SettingsModule
	if settingsModule == "" {
		settingsModule = DefaultSettingsModule
	}
	return &Config{
		name:           name,
		label:          label,
		path:           path,
		kind:           kind,
		module:         mod,
		settingsModule: settingsModule,
		importer:       imp,
	}
}

// Name is the dotted path of the unit package, unique across all tiers.
func (c *Config) Name() string { return c.name }

// Label is the short alias of the unit, unique within its tier.
func (c *Config) Label() string { return c.label }

// Path is the filesystem root of the unit. It may be empty for units
// registered in-process.
func (c *Config) Path() string { return c.path }

// Kind is the tier the unit belongs to.
func (c *Config) Kind() Kind { return c.kind }

// Module is the imported unit package.
func (c *Config) Module() module.Module { return c.module }

// LookupModuleName is the submodule that declares this kind of config.
func (c *Config) LookupModuleName() string { return c.kind.LookupModule() }

// SettingsModule is the dotted path of the project settings module.
func (c *Config) SettingsModule() string {
	return module.Join(c.name, c.settingsModule)
}

func (c *Config) String() string {
	return fmt.Sprintf("<%s: %s>", c.kind.Singular(), c.label)
}

// Settings returns the project settings, resolving them on first use. Only
// projects own settings; other tiers, and projects without a settings module,
// get empty settings. The result is kept unless ctx ended during resolution,
// in which case the next call tries again.
func (c *Config) Settings(ctx context.Context) (*config.Settings, error) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	if c.settingsDone {
		return c.settings, c.settingsErr
	}
	s, err := c.loadSettings(ctx)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	c.settings, c.settingsErr, c.settingsDone = s, err, true
	return s, err
}

func (c *Config) loadSettings(ctx context.Context) (*config.Settings, error) {
	if c.kind != KindProject || c.importer == nil {
		return config.FromSymbols("", nil)
	}
	path := c.SettingsModule()
	m, err := c.importer.Import(ctx, path)
	if errors.Is(err, module.ErrNotFound) {
		log.Debug(log.CatConfig, "project has no settings module", "project", c.label, "module", path)
		return config.FromSymbols(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: settings of project '%s': %w", config.ErrImproperlyConfigured, c.label, err)
	}
	return config.FromSymbols(path, m.Symbols)
}

// GetSetting reads one project setting. An unset setting yields nil unless a
// default or Strict is given.
func (c *Config) GetSetting(ctx context.Context, name string, opts ...config.LookupOption) (any, error) {
	s, err := c.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.Lookup(name, opts...)
}
