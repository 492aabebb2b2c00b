// Package testutil builds unit fixtures for tests: in-process module tables
// and on-disk source trees.
package testutil

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/module"
)

// Lookup modules of the three tiers and the command/managers modules.
const (
	LookupCommon    = "config"
	LookupPlugins   = "plugins"
	LookupProjects  = "projects"
	ManagersModule  = "managers"
	CommandsPackage = "management.commands"
)

// unitData holds a unit package and what it declares.
type unitData struct {
	name   string
	lookup string
	dir    string
	decls  []module.Symbol
}

// Builder accumulates unit fixtures and registers them in a module.Table.
type Builder struct {
	t       *testing.T
	units   []unitData
	modules []module.Spec
}

// NewBuilder creates an empty fixture builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithProject adds a project package with the given options.
func (b *Builder) WithProject(name string, opts ...UnitOption) *Builder {
	return b.withUnit(name, LookupProjects, opts)
}

// WithPlugin adds a plugin package.
func (b *Builder) WithPlugin(name string, opts ...UnitOption) *Builder {
	return b.withUnit(name, LookupPlugins, opts)
}

// WithCommon adds a common package, such as the user common config named
// after the settings module.
func (b *Builder) WithCommon(name string, opts ...UnitOption) *Builder {
	return b.withUnit(name, LookupCommon, opts)
}

func (b *Builder) withUnit(name, lookup string, opts []UnitOption) *Builder {
	u := unitData{name: name, lookup: lookup}
	for _, opt := range opts {
		opt(&u, b)
	}
	b.units = append(b.units, u)
	return b
}

// WithModule adds a plain module with symbols.
func (b *Builder) WithModule(path string, symbols ...module.Symbol) *Builder {
	b.modules = append(b.modules, module.Spec{Path: path, Load: module.Static(symbols...)})
	return b
}

// WithPackage adds an empty package.
func (b *Builder) WithPackage(path string) *Builder {
	b.modules = append(b.modules, module.Spec{Path: path, Package: true})
	return b
}

// WithSettings adds a settings module. Symbols are registered sorted by name.
func (b *Builder) WithSettings(path string, values map[string]any) *Builder {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	symbols := make([]module.Symbol, 0, len(names))
	for _, n := range names {
		symbols = append(symbols, module.Sym(n, values[n]))
	}
	return b.WithModule(path, symbols...)
}

// WithBroken adds a module whose import fails with err.
func (b *Builder) WithBroken(path string, err error) *Builder {
	b.modules = append(b.modules, module.Spec{Path: path, Load: func(context.Context) ([]module.Symbol, error) {
		return nil, err
	}})
	return b
}

// Build registers everything in a new Table.
func (b *Builder) Build() *module.Table {
	b.t.Helper()
	tbl := module.NewTable()
	for _, u := range b.units {
		require.NoError(b.t, tbl.Register(module.Spec{Path: u.name, Dir: u.dir, Package: true}))
		if len(u.decls) > 0 {
			require.NoError(b.t, tbl.Register(module.Spec{
				Path: module.Join(u.name, u.lookup),
				Load: module.Static(u.decls...),
			}))
		}
	}
	for _, spec := range b.modules {
		require.NoError(b.t, tbl.Register(spec))
	}
	return tbl
}
