package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
)

// ManagersModule is the module of a unit that declares its managers.
const ManagersModule = "managers"

// Deps is what a Constructor receives.
type Deps struct {
	Core     *registry.Core
	Importer module.Importer
}

// Constructor builds a manager from a unit's managers module.
type Constructor func(Deps) (Manager, error)

// Registry holds every manager by unique name, in registration order.
type Registry struct {
	core *registry.Core

	mu     sync.RWMutex
	order  []string
	byName map[string]Manager
	loaded map[string]bool
}

var _ registry.ManagerLoader = (*Registry)(nil)

// NewRegistry creates an empty registry bound to core and installs itself as
// core's manager loader.
func NewRegistry(core *registry.Core) *Registry {
	r := &Registry{
		core:   core,
		byName: make(map[string]Manager),
		loaded: make(map[string]bool),
	}
	core.SetManagerLoader(r)
	return r
}

// Add registers managers. Names must be unique; on a duplicate nothing is
// added.
func (r *Registry) Add(managers ...Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dups []string
	seen := make(map[string]bool, len(managers))
	for _, m := range managers {
		if _, exists := r.byName[m.Name()]; exists || seen[m.Name()] {
			dups = append(dups, m.Name())
		}
		seen[m.Name()] = true
	}
	if len(dups) > 0 {
		return fmt.Errorf("%w: Manager names aren't unique. Duplicates:\n%s",
			config.ErrImproperlyConfigured, strings.Join(dups, "\n"))
	}
	for _, m := range managers {
		r.byName[m.Name()] = m
		r.order = append(r.order, m.Name())
		log.Debug(log.CatManager, "manager registered", "manager", m.Name(), "lookup", m.LookupModule())
	}
	return nil
}

// Get returns the manager named name.
func (r *Registry) Get(name string) (Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byName[name]; ok {
		return m, nil
	}
	choices := append([]string(nil), r.order...)
	sort.Strings(choices)
	return nil, fmt.Errorf("%w: '%s' does not exist. Choices are:\n[%s]",
		ErrManagerNotFound, name, quoted(choices))
}

// List returns the managers in registration order.
func (r *Registry) List() []Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Manager, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the manager names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Reset drops every manager.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byName = make(map[string]Manager)
	r.loaded = make(map[string]bool)
}

// LoadManagers imports <cfg>.managers and registers what it declares:
// ManagerDecl values become BaseManagers, Constructor values are called and
// Manager values are registered as is. A unit without a managers module
// declares none. A config is loaded once until Reset.
func (r *Registry) LoadManagers(ctx context.Context, cfg *registry.Config) error {
	r.mu.RLock()
	done := r.loaded[cfg.Name()]
	r.mu.RUnlock()
	if done {
		return nil
	}

	mod, err := r.core.Importer().Import(ctx, module.Join(cfg.Name(), ManagersModule))
	if errors.Is(err, module.ErrNotFound) {
		r.markLoaded(cfg)
		return nil
	}
	if err != nil {
		return err
	}

	var managers []Manager
	for _, sym := range mod.Symbols {
		m, err := r.build(sym)
		if err != nil {
			return err
		}
		if m != nil {
			managers = append(managers, m)
		}
	}
	if err := r.Add(managers...); err != nil {
		return err
	}
	r.markLoaded(cfg)
	return nil
}

func (r *Registry) markLoaded(cfg *registry.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[cfg.Name()] = true
}

func (r *Registry) build(sym module.Symbol) (Manager, error) {
	switch v := sym.Value.(type) {
	case module.ManagerDecl:
		if v.Name == "" {
			return nil, fmt.Errorf("%w: '%s' must supply a name attribute", config.ErrImproperlyConfigured, sym.Name)
		}
		if v.LookupModule == "" {
			return nil, fmt.Errorf("%w: '%s' must supply a lookup_module attribute", config.ErrImproperlyConfigured, sym.Name)
		}
		return NewBaseManager(v.Name, v.LookupModule, r.core), nil
	case Constructor:
		return v(Deps{Core: r.core, Importer: r.core.Importer()})
	case func(Deps) (Manager, error):
		return v(Deps{Core: r.core, Importer: r.core.Importer()})
	case Manager:
		return v, nil
	default:
		return nil, nil
	}
}

func quoted(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = "'" + s + "'"
	}
	return strings.Join(q, ", ")
}
