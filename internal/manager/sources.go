package manager

import (
	"context"

	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
)

// Sources enumerates and loads the places a config declares hooks.
type Sources interface {
	// Candidates lists the dotted module paths that may hold hooks for cfg.
	Candidates(ctx context.Context, cfg *registry.Config) ([]string, error)
	// Load imports one candidate and returns the hooks it declares. A missing
	// module yields an error matching module.ErrNotFound.
	Load(ctx context.Context, location string) ([]Hook, error)
}

// ModuleSources looks for hooks in a single lookup module per config.
type ModuleSources struct {
	Importer module.Importer
	Lookup   string
}

// Candidates returns <config name>.<lookup>.
func (s ModuleSources) Candidates(_ context.Context, cfg *registry.Config) ([]string, error) {
	return []string{module.Join(cfg.Name(), s.Lookup)}, nil
}

// Load imports location and returns every symbol that is a Hook.
func (s ModuleSources) Load(ctx context.Context, location string) ([]Hook, error) {
	m, err := s.Importer.Import(ctx, location)
	if err != nil {
		return nil, err
	}
	return HooksIn(m), nil
}

// HooksIn returns the Hook values declared by m in declaration order.
func HooksIn(m module.Module) []Hook {
	var hooks []Hook
	for _, v := range m.Values() {
		if h, ok := v.(Hook); ok {
			hooks = append(hooks, h)
		}
	}
	return hooks
}
