package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/tracing"
)

// Manager is what the manager Registry holds.
type Manager interface {
	Name() string
	LookupModule() string
	FindAll(ctx context.Context) error
	FindHooksImpl(ctx context.Context, cfg *registry.Config) error
	SearchHookImpl(ctx context.Context, name string, cfg *registry.Config) (Hook, error)
	GetHooksName() []string
	Reset()
}

// hookSet keeps the hooks of one config in registration order.
type hookSet struct {
	order  []string
	byName map[string]Hook
}

func (s *hookSet) clone() *hookSet {
	c := &hookSet{order: append([]string(nil), s.order...), byName: make(map[string]Hook, len(s.byName))}
	for k, v := range s.byName {
		c.byName[k] = v
	}
	return c
}

// BaseManager discovers and resolves the hooks of one manager.
type BaseManager struct {
	name    string
	lookup  string
	core    *registry.Core
	sources Sources

	// discover serializes discovery so the first caller's result is the only one.
	discover sync.Mutex

	mu       sync.RWMutex
	hooks    map[registry.Kind]map[string]*hookSet
	labels   map[registry.Kind][]string
	searched map[string]bool
}

var _ Manager = (*BaseManager)(nil)

// Option configures a BaseManager.
type Option func(*BaseManager)

// WithSources replaces the default single-lookup-module sources.
func WithSources(s Sources) Option {
	return func(m *BaseManager) { m.sources = s }
}

// NewBaseManager creates a manager named name whose hooks live in each
// config's lookup module.
func NewBaseManager(name, lookup string, core *registry.Core, opts ...Option) *BaseManager {
	m := &BaseManager{
		name:   name,
		lookup: lookup,
		core:   core,
	}
	m.sources = ModuleSources{Importer: core.Importer(), Lookup: lookup}
	for _, opt := range opts {
		opt(m)
	}
	m.resetLocked()
	return m
}

func (m *BaseManager) Name() string         { return m.name }
func (m *BaseManager) LookupModule() string { return m.lookup }

// Core returns the registries the manager resolves against.
func (m *BaseManager) Core() *registry.Core { return m.core }

func (m *BaseManager) resetLocked() {
	m.hooks = make(map[registry.Kind]map[string]*hookSet)
	m.labels = make(map[registry.Kind][]string)
	m.searched = make(map[string]bool)
}

// Reset forgets every discovered hook.
func (m *BaseManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func searchKey(cfg *registry.Config) string {
	return string(cfg.Kind()) + "/" + cfg.Label()
}

// Searched reports whether discovery already succeeded for cfg.
func (m *BaseManager) Searched(cfg *registry.Config) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searched[searchKey(cfg)]
}

// FindHooksImpl discovers the hooks cfg declares for this manager. Success is
// memoized per config. Missing modules are skipped; any other load error is
// returned wrapped in ErrHookImport and nothing from cfg is registered, so a
// later call retries.
func (m *BaseManager) FindHooksImpl(ctx context.Context, cfg *registry.Config) (err error) {
	m.discover.Lock()
	defer m.discover.Unlock()

	if m.Searched(cfg) {
		return nil
	}

	ctx, span := tracing.Start(ctx, tracing.SpanFindHooks,
		attribute.String(tracing.AttrManager, m.name),
		attribute.String(tracing.AttrTier, string(cfg.Kind())),
		attribute.String(tracing.AttrConfigLabel, cfg.Label()),
	)
	defer func() { tracing.End(span, err) }()

	candidates, err := m.sources.Candidates(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %s '%s': %w", ErrHookImport, cfg.Kind().Singular(), cfg.Label(), err)
	}

	var found []Hook
	for _, loc := range candidates {
		hooks, err := m.sources.Load(ctx, loc)
		if errors.Is(err, module.ErrNotFound) {
			log.Debug(log.CatManager, "no hook module", "manager", m.name, "location", loc)
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrHookImport, loc, err)
		}
		found = append(found, hooks...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.setLocked(cfg).clone()
	for _, h := range found {
		if IsAbstract(h) {
			continue
		}
		if h.ManagerName() != "" && h.ManagerName() != m.name {
			continue
		}
		if err := addTo(set, cfg, h); err != nil {
			return err
		}
	}
	m.storeLocked(cfg, set)
	m.searched[searchKey(cfg)] = true
	log.Debug(log.CatManager, "hooks discovered", "manager", m.name, "config", cfg.Label(), "count", len(set.order))
	return nil
}

func (m *BaseManager) setLocked(cfg *registry.Config) *hookSet {
	if byLabel, ok := m.hooks[cfg.Kind()]; ok {
		if set, ok := byLabel[cfg.Label()]; ok {
			return set
		}
	}
	return &hookSet{byName: make(map[string]Hook)}
}

func (m *BaseManager) storeLocked(cfg *registry.Config, set *hookSet) {
	byLabel, ok := m.hooks[cfg.Kind()]
	if !ok {
		byLabel = make(map[string]*hookSet)
		m.hooks[cfg.Kind()] = byLabel
	}
	if _, exists := byLabel[cfg.Label()]; !exists {
		m.labels[cfg.Kind()] = append(m.labels[cfg.Kind()], cfg.Label())
	}
	byLabel[cfg.Label()] = set
}

func addTo(set *hookSet, cfg *registry.Config, h Hook) error {
	if h.ManagerName() == "" {
		return fmt.Errorf("%w: %T hook must be linked to a manager", config.ErrImproperlyConfigured, h)
	}
	name := NameOf(h)
	if _, exists := set.byName[name]; exists {
		return fmt.Errorf("%w: '%s' already exists in %s '%s'. Hook names must be unique within a config",
			ErrDuplicateHook, name, cfg.Kind().Singular(), cfg.Label())
	}
	set.byName[name] = h
	set.order = append(set.order, name)
	return nil
}

// AddHookImpl registers h under cfg.
func (m *BaseManager) AddHookImpl(cfg *registry.Config, h Hook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.setLocked(cfg)
	if err := addTo(set, cfg, h); err != nil {
		return err
	}
	m.storeLocked(cfg, set)
	return nil
}

// FindAll discovers hooks in every installed config: core, the user common
// config, then plugins and projects.
func (m *BaseManager) FindAll(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanFindAll, attribute.String(tracing.AttrManager, m.name))
	defer func() { tracing.End(span, err) }()

	coreCfg, err := m.core.CoreConfig()
	if err != nil {
		return err
	}
	configs := []*registry.Config{coreCfg}
	if user := m.core.UserCommonConfig(); user != nil {
		configs = append(configs, user)
	}
	userConfigs, err := m.core.UserConfigs()
	if err != nil {
		return err
	}
	configs = append(configs, userConfigs...)

	for _, cfg := range configs {
		if err := m.FindHooksImpl(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// GetHook returns the hook named name registered under cfg.
func (m *BaseManager) GetHook(cfg *registry.Config, name string) (Hook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.hooks[cfg.Kind()][cfg.Label()]
	if !ok {
		return nil, false
	}
	h, ok := set.byName[name]
	return h, ok
}

// GetHooks returns the hooks registered under cfg in registration order.
func (m *BaseManager) GetHooks(cfg *registry.Config) []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.hooks[cfg.Kind()][cfg.Label()]
	if !ok {
		return nil
	}
	hooks := make([]Hook, 0, len(set.order))
	for _, name := range set.order {
		hooks = append(hooks, set.byName[name])
	}
	return hooks
}

// GetHookConfigHolders returns the labels of the configs holding name, by
// tier importance then discovery order.
func (m *BaseManager) GetHookConfigHolders(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var holders []string
	for _, kind := range registry.ByImportance() {
		for _, label := range m.labels[kind] {
			if _, ok := m.hooks[kind][label].byName[name]; ok {
				holders = append(holders, label)
			}
		}
	}
	return holders
}

// GetHooksName returns every discovered hook name, sorted.
func (m *BaseManager) GetHooksName() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	for _, byLabel := range m.hooks {
		for _, set := range byLabel {
			for _, n := range set.order {
				seen[n] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HooksByKind returns, for one tier, each config label with its hooks in
// discovery order.
func (m *BaseManager) HooksByKind(kind registry.Kind) ([]string, map[string][]Hook) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := append([]string(nil), m.labels[kind]...)
	out := make(map[string][]Hook, len(labels))
	for _, label := range labels {
		set := m.hooks[kind][label]
		for _, n := range set.order {
			out[label] = append(out[label], set.byName[n])
		}
	}
	return labels, out
}

// IsHooked returns ErrNotHooked when no hook has been registered.
func (m *BaseManager) IsHooked() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, byLabel := range m.hooks {
		for _, set := range byLabel {
			if len(set.order) > 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: '%s' manager has no hooks", ErrNotHooked, m.name)
}

// SearchChain returns the configs searched for a hook, most important first:
// cfg when given, the user common config, plugins in declaration order, then
// core. Projects are only searched when named as cfg.
func (m *BaseManager) SearchChain(cfg *registry.Config) ([]*registry.Config, error) {
	var chain []*registry.Config
	if cfg != nil {
		chain = append(chain, cfg)
	}
	if user := m.core.UserCommonConfig(); user != nil {
		chain = append(chain, user)
	}
	plugins, err := m.core.Plugins().Configs()
	if err != nil {
		return nil, err
	}
	chain = append(chain, plugins...)
	coreCfg, err := m.core.CoreConfig()
	if err != nil {
		return nil, err
	}
	return append(chain, coreCfg), nil
}

// SearchHookImpl resolves name along SearchChain(cfg), discovering each
// config's hooks on the way.
func (m *BaseManager) SearchHookImpl(ctx context.Context, name string, cfg *registry.Config) (h Hook, err error) {
	attrs := []attribute.KeyValue{
		attribute.String(tracing.AttrManager, m.name),
		attribute.String(tracing.AttrHook, name),
	}
	if cfg != nil {
		attrs = append(attrs, attribute.String(tracing.AttrConfigLabel, cfg.Label()))
	}
	ctx, span := tracing.Start(ctx, tracing.SpanSearchHook, attrs...)
	defer func() { tracing.End(span, err) }()

	chain, err := m.SearchChain(cfg)
	if err != nil {
		return nil, err
	}
	for _, c := range chain {
		if err := m.FindHooksImpl(ctx, c); err != nil {
			return nil, err
		}
		if h, ok := m.GetHook(c, name); ok {
			log.Debug(log.CatManager, "hook resolved", "manager", m.name, "hook", name, "config", c.Label(), "tier", c.Kind())
			span.SetAttributes(attribute.String(tracing.AttrTier, string(c.Kind())))
			return h, nil
		}
	}
	if err := m.IsHooked(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: '%s' hook was not found in '%s' manager", ErrHookNotFound, name, m.name)
}
