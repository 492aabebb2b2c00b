package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/socon/internal/log"
)

// Loader produces the symbols of a module each time it is imported.
type Loader func(ctx context.Context) ([]Symbol, error)

// Static returns a Loader that always yields symbols.
func Static(symbols ...Symbol) Loader {
	return func(context.Context) ([]Symbol, error) {
		return symbols, nil
	}
}

// Spec registers one module in a Table.
type Spec struct {
	Path    string
	Dir     string
	Package bool
	Load    Loader
}

// Table is an in-process importer backed by explicitly registered modules.
// Parent packages of registered paths resolve as implicit namespace packages.
type Table struct {
	mu    sync.RWMutex
	specs map[string]Spec
	loads map[string]int
}

var _ Importer = (*Table)(nil)

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		specs: make(map[string]Spec),
		loads: make(map[string]int),
	}
}

// Register adds a module. Registering the same path twice fails.
func (t *Table) Register(spec Spec) error {
	if !ValidPath(spec.Path) {
		return fmt.Errorf("invalid module path %q", spec.Path)
	}
	if spec.Load == nil {
		spec.Load = Static()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.specs[spec.Path]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, spec.Path)
	}
	t.specs[spec.Path] = spec
	log.Debug(log.CatModule, "registered module", "path", spec.Path, "package", spec.Package)
	return nil
}

// MustRegister registers specs and panics on the first failure.
func (t *Table) MustRegister(specs ...Spec) {
	for _, spec := range specs {
		if err := t.Register(spec); err != nil {
			panic(err)
		}
	}
}

// Import runs the module's loader. Every call runs the loader again; callers
// memoize as they need to.
func (t *Table) Import(ctx context.Context, path string) (Module, error) {
	t.mu.Lock()
	spec, ok := t.specs[path]
	if ok {
		t.loads[path]++
	}
	implicit := !ok && t.hasChildrenLocked(path)
	t.mu.Unlock()

	switch {
	case ok:
		symbols, err := spec.Load(ctx)
		if err != nil {
			return Module{}, fmt.Errorf("import %s: %w", path, err)
		}
		return Module{Path: path, Dir: spec.Dir, Package: spec.Package, Symbols: symbols}, nil
	case implicit:
		return Module{Path: path, Package: true}, nil
	default:
		return Module{}, &NotFoundError{Path: path}
	}
}

// Submodules lists the direct children of path.
func (t *Table) Submodules(_ context.Context, path string) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.specs[path]; !ok && !t.hasChildrenLocked(path) {
		return nil, &NotFoundError{Path: path}
	}

	prefix := path + "."
	found := make(map[string]bool)
	for p, spec := range t.specs {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, deeper, nested := strings.Cut(rest, ".")
		isPkg := nested && deeper != ""
		if !nested {
			isPkg = spec.Package
		}
		found[name] = found[name] || isPkg
	}

	entries := make([]Entry, 0, len(found))
	for name, isPkg := range found {
		entries = append(entries, Entry{Name: name, Package: isPkg})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (t *Table) hasChildrenLocked(path string) bool {
	prefix := path + "."
	for p := range t.specs {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Loads reports how many times the module at path has been loaded.
func (t *Table) Loads(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loads[path]
}

// Paths returns the registered module paths, sorted.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.specs))
	for p := range t.specs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
