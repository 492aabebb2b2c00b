package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
)

const (
	// EnvSettingsModule names the settings module when --settings is absent.
	EnvSettingsModule = "SOCON_SETTINGS_MODULE"
	// EnvActiveProject names the active project when --project is absent.
	EnvActiveProject = "SOCON_ACTIVE_PROJECT"
	// EnvPrefix prefixes environment overrides of individual settings.
	EnvPrefix = "SOCON"
)

// Names of the framework settings read by the registries.
const (
	InstalledPlugins          = "INSTALLED_PLUGINS"
	InstalledProjects         = "INSTALLED_PROJECTS"
	SkipErrorOnProjectsImport = "SKIP_ERROR_ON_PROJECTS_IMPORT"
	Logging                   = "LOGGING"
)

var (
	// ErrImproperlyConfigured reports an invalid installation or settings layout.
	ErrImproperlyConfigured = errors.New("improperly configured")
	// ErrSettingNotFound is returned by strict lookups of unset settings.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrInvalidSettingName rejects settings whose names are not uppercase.
	ErrInvalidSettingName = errors.New("setting names must be uppercase")
	// ErrSettingsImport marks a settings module that could not be imported or
	// read. Callers may fall back to unconfigured settings on it; any other
	// load failure is fatal.
	ErrSettingsImport = errors.New("settings module could not be loaded")
)

// SettingsError reports a failure to load the settings module Module. It
// matches ErrSettingsImport and the underlying error.
type SettingsError struct {
	Module string
	Err    error
}

func (e *SettingsError) Error() string { return e.Err.Error() }

func (e *SettingsError) Unwrap() []error { return []error{ErrSettingsImport, e.Err} }

// GlobalDefaults returns the framework-wide default settings.
func GlobalDefaults() map[string]any {
	return map[string]any{
		InstalledPlugins:          []string{},
		InstalledProjects:         []string{},
		SkipErrorOnProjectsImport: true,
		Logging:                   map[string]any{},
	}
}

// IsSettingName reports whether name is a valid setting name: at least one
// letter and no lowercase letters.
func IsSettingName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

type overrideFrame struct {
	id     int
	values map[string]any
}

// Settings is a layered, uppercase-keyed settings store. From lowest to highest
// precedence: defaults, the settings module, SOCON_<NAME> environment
// variables, then values applied through Set or Override.
type Settings struct {
	mu         sync.RWMutex
	v          *viper.Viper
	module     string
	configured bool
	names      map[string]struct{}
	set        map[string]any
	frames     []overrideFrame
	nextFrame  int
}

func newSettings(defaults map[string]any, env bool) *Settings {
	s := &Settings{
		v:     viper.New(),
		names: make(map[string]struct{}),
		set:   make(map[string]any),
	}
	for k, val := range defaults {
		s.v.SetDefault(k, val)
		s.names[k] = struct{}{}
	}
	if env {
		s.v.SetEnvPrefix(EnvPrefix)
		s.v.AutomaticEnv()
	}
	return s
}

// Load builds the framework settings from the named module. An empty name
// yields unconfigured settings holding only the global defaults.
func Load(ctx context.Context, imp module.Importer, moduleName string) (*Settings, error) {
	s := newSettings(GlobalDefaults(), true)
	if moduleName == "" {
		log.Debug(log.CatConfig, "no settings module configured")
		return s, nil
	}

	m, err := imp.Import(ctx, moduleName)
	if err != nil {
		return nil, &SettingsError{
			Module: moduleName,
			Err:    fmt.Errorf("%w: settings module '%s' could not be imported: %w", ErrImproperlyConfigured, moduleName, err),
		}
	}
	if err := s.merge(m.Symbols); err != nil {
		return nil, &SettingsError{Module: moduleName, Err: fmt.Errorf("settings module '%s': %w", moduleName, err)}
	}
	s.module = moduleName
	s.configured = true
	log.Info(log.CatConfig, "settings loaded", "module", moduleName, "keys", len(s.names))
	return s, nil
}

// Configure builds configured settings from explicit values, without a
// settings module. Every name must be uppercase.
func Configure(opts map[string]any) (*Settings, error) {
	for name := range opts {
		if !IsSettingName(name) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSettingName, name)
		}
	}
	s := newSettings(GlobalDefaults(), false)
	symbols := make([]module.Symbol, 0, len(opts))
	for k, val := range opts {
		symbols = append(symbols, module.Sym(k, val))
	}
	if err := s.merge(symbols); err != nil {
		return nil, err
	}
	s.configured = true
	return s, nil
}

// FromSymbols builds settings that hold only the uppercase symbols of a
// module. It is used for per-project settings, which have no defaults and
// ignore the environment.
func FromSymbols(moduleName string, symbols []module.Symbol) (*Settings, error) {
	s := newSettings(nil, false)
	if err := s.merge(symbols); err != nil {
		return nil, err
	}
	s.module = moduleName
	s.configured = true
	return s, nil
}

// merge adds the uppercase symbols to the module layer; others are ignored.
func (s *Settings) merge(symbols []module.Symbol) error {
	values := make(map[string]any)
	for _, sym := range symbols {
		if !IsSettingName(sym.Name) {
			continue
		}
		values[sym.Name] = sym.Value
		s.names[sym.Name] = struct{}{}
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	return nil
}

// Configured reports whether a settings module or explicit values were loaded.
func (s *Settings) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configured
}

// Module returns the dotted settings module path, or "".
func (s *Settings) Module() string {
	return s.module
}

// ModuleName returns the first segment of the settings module, which names
// the user common config.
func (s *Settings) ModuleName() string {
	return module.Head(s.module)
}

func (s *Settings) overriddenLocked(name string) (any, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].values[name]; ok {
			return v, true
		}
	}
	v, ok := s.set[name]
	return v, ok
}

// IsSet reports whether any layer provides name.
func (s *Settings) IsSet(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.overriddenLocked(name); ok {
		return true
	}
	return s.v.IsSet(name)
}

// IsOverridden reports whether name was applied through Set or Override.
func (s *Settings) IsOverridden(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overriddenLocked(name)
	return ok
}

// Get returns the value of name, or nil when unset.
func (s *Settings) Get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overriddenLocked(name); ok {
		return v
	}
	return s.v.Get(name)
}

// GetString returns name as a string.
func (s *Settings) GetString(name string) string {
	return cast.ToString(s.Get(name))
}

// GetBool returns name as a bool. Environment values such as "0" or "false"
// are parsed.
func (s *Settings) GetBool(name string) bool {
	return cast.ToBool(s.Get(name))
}

// GetStringSlice returns name as a list of strings. A string value from the
// environment is split on whitespace and commas.
func (s *Settings) GetStringSlice(name string) []string {
	v := s.Get(name)
	if str, ok := v.(string); ok {
		return strings.FieldsFunc(str, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	}
	return cast.ToStringSlice(v)
}

// LookupOption tunes Lookup.
type LookupOption func(*lookupOptions)

type lookupOptions struct {
	def    any
	hasDef bool
	strict bool
}

// WithDefault returns v when the setting is unset.
func WithDefault(v any) LookupOption {
	return func(o *lookupOptions) {
		o.def = v
		o.hasDef = true
	}
}

// Strict makes Lookup fail with ErrSettingNotFound when the setting is unset
// and no default was given.
func Strict() LookupOption {
	return func(o *lookupOptions) { o.strict = true }
}

// Lookup returns the value of name. An unset setting yields the default if one
// was given, an error under Strict, and nil otherwise.
func (s *Settings) Lookup(name string, opts ...LookupOption) (any, error) {
	if s.IsSet(name) {
		return s.Get(name), nil
	}
	return ResolveMissing(ErrSettingNotFound, name, opts...)
}

// ResolveMissing applies opts to a value that is absent: the default if one
// was given, notFound under Strict, and nil otherwise.
func ResolveMissing(notFound error, name string, opts ...LookupOption) (any, error) {
	var o lookupOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasDef {
		return o.def, nil
	}
	if o.strict {
		return nil, fmt.Errorf("%w: %s", notFound, name)
	}
	return nil, nil
}

// Set applies value to name above every other layer.
func (s *Settings) Set(name string, value any) error {
	if !IsSettingName(name) {
		return fmt.Errorf("%w: %s", ErrInvalidSettingName, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[name] = value
	s.names[name] = struct{}{}
	return nil
}

// Override applies values until the returned restore func is called. Frames
// may be restored in any order.
func (s *Settings) Override(values map[string]any) (func(), error) {
	for name := range values {
		if !IsSettingName(name) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSettingName, name)
		}
	}

	s.mu.Lock()
	id := s.nextFrame
	s.nextFrame++
	s.frames = append(s.frames, overrideFrame{id: id, values: maps.Clone(values)})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.frames = slices.DeleteFunc(s.frames, func(f overrideFrame) bool { return f.id == id })
		})
	}, nil
}

// Keys returns every known setting name, sorted.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := maps.Clone(s.names)
	for _, f := range s.frames {
		for k := range f.values {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
