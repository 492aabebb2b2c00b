package module

import (
	"context"
	"errors"
	"sort"
)

// Chain tries each importer in order. The first importer that knows a path
// wins; a missing module falls through to the next one.
type Chain []Importer

var _ Importer = Chain(nil)

// Import returns the module from the first importer that has it.
func (c Chain) Import(ctx context.Context, path string) (Module, error) {
	for _, imp := range c {
		m, err := imp.Import(ctx, path)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Module{}, err
		}
	}
	return Module{}, &NotFoundError{Path: path}
}

// Submodules merges the children every importer reports for path. An entry is
// a package if any importer says so.
func (c Chain) Submodules(ctx context.Context, path string) ([]Entry, error) {
	found := make(map[string]bool)
	seen := false
	for _, imp := range c {
		entries, err := imp.Submodules(ctx, path)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		seen = true
		for _, e := range entries {
			found[e.Name] = found[e.Name] || e.Package
		}
	}
	if !seen {
		return nil, &NotFoundError{Path: path}
	}

	entries := make([]Entry, 0, len(found))
	for name, isPkg := range found {
		entries = append(entries, Entry{Name: name, Package: isPkg})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
