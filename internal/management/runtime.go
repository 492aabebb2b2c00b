package management

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/registry"
)

// Runtime bundles the registries commands are resolved against.
type Runtime struct {
	Core        *registry.Core
	Managers    *manager.Registry
	// SettingsErr is the error hit while loading the settings module, if the
	// runtime fell back to core commands only.
	SettingsErr error

	// Sources are the directories units are imported from on disk.
	Sources       []string
	// WatchDebounce groups file changes seen by watchers.
	WatchDebounce time.Duration
	// Reload drops cached imports and builds a fresh runtime for the same
	// settings. Nil when reloading is not supported.
	Reload        func(ctx context.Context) (*Runtime, error)
}

// Loader builds a ready Runtime for a settings module. An empty module name
// builds a runtime with no user configuration.
type Loader func(ctx context.Context, settingsModule string) (*Runtime, error)

// Commands returns the main command manager.
func (r *Runtime) Commands() (*CommandManager, error) {
	return r.CommandManager(CommandsManager)
}

// CommandManager returns the command manager named name.
func (r *Runtime) CommandManager(name string) (*CommandManager, error) {
	m, err := r.Managers.Get(name)
	if err != nil {
		return nil, err
	}
	cm, ok := m.(*CommandManager)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' is not a command manager", config.ErrImproperlyConfigured, name)
	}
	return cm, nil
}

// FindAll discovers the hooks of every registered manager.
func (r *Runtime) FindAll(ctx context.Context) error {
	for _, m := range r.Managers.List() {
		if err := m.FindAll(ctx); err != nil {
			return err
		}
	}
	return nil
}
