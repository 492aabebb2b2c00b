package manager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/testutil"
)

const testLookup = "hooks"

var allPlugins = []string{"plugin_a", "plugin_b", "plugin_c"}

type greetHook struct {
	name    string
	manager string
	owner   string
}

func (h greetHook) Name() string        { return h.name }
func (h greetHook) ManagerName() string { return h.manager }

func greet(owner string) greetHook {
	return greetHook{name: "greet", manager: "greeters", owner: owner}
}

type abstractHook struct{ greetHook }

func (abstractHook) Abstract() bool { return true }

type BuildCommand struct{}

func (BuildCommand) Name() string        { return "" }
func (BuildCommand) ManagerName() string { return "greeters" }

type fixture struct {
	core     *registry.Core
	managers *Registry
	table    *module.Table
}

func newFixture(t *testing.T, plugins, projects []string, hooks map[string][]any, extra ...func(*testutil.Builder)) fixture {
	t.Helper()
	ctx := context.Background()

	unit := func(name string) []testutil.UnitOption {
		var opts []testutil.UnitOption
		if hs := hooks[name]; len(hs) > 0 {
			opts = append(opts, testutil.Hooks(testLookup, hs...))
		}
		return opts
	}
	coreOpts := append(unit(registry.CoreName),
		testutil.Managers(module.ManagerDecl{Name: "greeters", LookupModule: testLookup}))

	b := testutil.NewBuilder(t).
		WithCommon(registry.CoreName, coreOpts...).
		WithCommon("mysettings", unit("mysettings")...).
		WithSettings("mysettings.dev", map[string]any{
			config.InstalledPlugins:  append([]string{}, plugins...),
			config.InstalledProjects: append([]string{}, projects...),
		})
	for _, p := range allPlugins {
		b.WithPlugin(p, unit(p)...)
	}
	for _, p := range []string{"apollo", "artemis"} {
		b.WithProject(p, unit(p)...)
	}
	for _, fn := range extra {
		fn(b)
	}
	tbl := b.Build()

	s, err := config.Load(ctx, tbl, "mysettings.dev")
	require.NoError(t, err)
	core := registry.NewCore(s, tbl)
	managers := NewRegistry(core)
	require.NoError(t, core.Setup(ctx))
	return fixture{core: core, managers: managers, table: tbl}
}

func (f fixture) greeters(t *testing.T) *BaseManager {
	t.Helper()
	m, err := f.managers.Get("greeters")
	require.NoError(t, err)
	bm, ok := m.(*BaseManager)
	require.True(t, ok)
	return bm
}

func (f fixture) project(t *testing.T, label string) *registry.Config {
	t.Helper()
	cfg, err := f.core.Projects().Config(label)
	require.NoError(t, err)
	return cfg
}

func ownerOf(t *testing.T, h Hook) string {
	t.Helper()
	g, ok := h.(greetHook)
	require.True(t, ok, "unexpected hook type %T", h)
	return g.owner
}

func TestBaseManager_SearchHookImpl_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		holders []string
		plugins []string
		project string
		want    string
	}{
		{
			name:    "explicit project wins",
			holders: []string{registry.CoreName, "mysettings", "plugin_a", "apollo"},
			plugins: allPlugins,
			project: "apollo",
			want:    "apollo",
		},
		{
			name:    "user common beats plugins",
			holders: []string{registry.CoreName, "mysettings", "plugin_a", "apollo"},
			plugins: allPlugins,
			want:    "mysettings",
		},
		{
			name:    "projects are not searched implicitly",
			holders: []string{registry.CoreName, "apollo"},
			plugins: allPlugins,
			want:    registry.CoreName,
		},
		{
			name:    "first plugin in declaration order",
			holders: []string{registry.CoreName, "plugin_a", "plugin_c"},
			plugins: []string{"plugin_c", "plugin_b", "plugin_a"},
			want:    "plugin_c",
		},
		{
			name:    "explicit project without the hook falls through",
			holders: []string{registry.CoreName, "plugin_b", "apollo"},
			plugins: allPlugins,
			project: "artemis",
			want:    "plugin_b",
		},
		{
			name:    "core is the fallback",
			holders: []string{registry.CoreName},
			plugins: allPlugins,
			project: "artemis",
			want:    registry.CoreName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := make(map[string][]any)
			for _, h := range tt.holders {
				hooks[h] = []any{greet(h)}
			}
			f := newFixture(t, tt.plugins, []string{"apollo", "artemis"}, hooks)

			var cfg *registry.Config
			if tt.project != "" {
				cfg = f.project(t, tt.project)
			}
			h, err := f.greeters(t).SearchHookImpl(context.Background(), "greet", cfg)
			require.NoError(t, err)
			require.Equal(t, tt.want, ownerOf(t, h))
		})
	}
}

func TestBaseManager_SearchHookImpl_PrecedenceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plugins := rapid.Permutation(allPlugins).Draw(rt, "plugins")
		explicit := rapid.SampledFrom([]string{"", "apollo", "artemis"}).Draw(rt, "project")

		hooks := map[string][]any{
			registry.CoreName: {greetHook{name: "other", manager: "greeters", owner: "core"}},
		}
		holds := make(map[string]bool)
		for _, u := range append([]string{registry.CoreName, "mysettings", "apollo", "artemis"}, allPlugins...) {
			if rapid.Bool().Draw(rt, "holds "+u) {
				holds[u] = true
				hooks[u] = append(hooks[u], greet(u))
			}
		}

		var chain []string
		if explicit != "" {
			chain = append(chain, explicit)
		}
		chain = append(chain, "mysettings")
		chain = append(chain, plugins...)
		chain = append(chain, registry.CoreName)
		want := ""
		for _, u := range chain {
			if holds[u] {
				want = u
				break
			}
		}

		f := newFixture(t, plugins, []string{"apollo", "artemis"}, hooks)
		var cfg *registry.Config
		if explicit != "" {
			cfg = f.project(t, explicit)
		}
		h, err := f.greeters(t).SearchHookImpl(context.Background(), "greet", cfg)
		if want == "" {
			if !errors.Is(err, ErrHookNotFound) {
				rt.Fatalf("expected ErrHookNotFound, got %v", err)
			}
			return
		}
		if err != nil {
			rt.Fatalf("search: %v", err)
		}
		if got := h.(greetHook).owner; got != want {
			rt.Fatalf("resolved %q, want %q (chain %v)", got, want, chain)
		}
	})
}

func TestBaseManager_SearchHookImpl_NotFound(t *testing.T) {
	f := newFixture(t, allPlugins, nil, map[string][]any{
		registry.CoreName: {greet(registry.CoreName)},
	})

	_, err := f.greeters(t).SearchHookImpl(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrHookNotFound)
	require.ErrorContains(t, err, "'missing' hook was not found in 'greeters' manager")
}

func TestBaseManager_SearchHookImpl_NotHooked(t *testing.T) {
	f := newFixture(t, allPlugins, nil, nil)

	_, err := f.greeters(t).SearchHookImpl(context.Background(), "greet", nil)
	require.ErrorIs(t, err, ErrNotHooked)
	require.ErrorIs(t, f.greeters(t).IsHooked(), ErrNotHooked)
}

func TestBaseManager_FindAll_Idempotent(t *testing.T) {
	f := newFixture(t, allPlugins, []string{"apollo"}, map[string][]any{
		registry.CoreName: {greet(registry.CoreName)},
		"plugin_a":        {greet("plugin_a")},
		"apollo":          {greet("apollo")},
	})
	m := f.greeters(t)
	ctx := context.Background()

	require.NoError(t, m.FindAll(ctx))
	require.NoError(t, m.FindAll(ctx))
	_, err := m.SearchHookImpl(ctx, "greet", f.project(t, "apollo"))
	require.NoError(t, err)

	for _, path := range []string{"socon.core.hooks", "plugin_a.hooks", "apollo.hooks"} {
		require.Equal(t, 1, f.table.Loads(path), path)
	}

	m.Reset()
	require.NoError(t, m.FindAll(ctx))
	require.Equal(t, 2, f.table.Loads("apollo.hooks"))
}

func TestBaseManager_FindAll_Concurrent(t *testing.T) {
	f := newFixture(t, allPlugins, []string{"apollo", "artemis"}, map[string][]any{
		registry.CoreName: {greet(registry.CoreName)},
		"plugin_b":        {greet("plugin_b")},
		"artemis":         {greet("artemis")},
	})
	m := f.greeters(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.FindAll(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, f.table.Loads("plugin_b.hooks"))
	require.Equal(t, 1, f.table.Loads("artemis.hooks"))
	require.Equal(t, []string{"core", "plugin_b", "artemis"}, m.GetHookConfigHolders("greet"))
}

func TestBaseManager_FindHooksImpl_FailureNotMemoized(t *testing.T) {
	f := newFixture(t, allPlugins, nil, map[string][]any{
		registry.CoreName: {greet(registry.CoreName)},
	}, func(b *testutil.Builder) {
		b.WithBroken("plugin_a.hooks", errors.New("syntax error"))
	})
	m := f.greeters(t)
	cfg, err := f.core.Plugins().Config("plugin_a")
	require.NoError(t, err)

	err = m.FindHooksImpl(context.Background(), cfg)
	require.ErrorIs(t, err, ErrHookImport)
	require.ErrorContains(t, err, "syntax error")
	require.False(t, m.Searched(cfg))

	err = m.FindHooksImpl(context.Background(), cfg)
	require.ErrorIs(t, err, ErrHookImport)
	require.Equal(t, 2, f.table.Loads("plugin_a.hooks"))
}

func TestBaseManager_FindHooksImpl_Filtering(t *testing.T) {
	f := newFixture(t, allPlugins, nil, map[string][]any{
		"plugin_a": {
			greet("plugin_a"),
			greetHook{name: "elsewhere", manager: "other"},
			abstractHook{greetHook{name: "base", manager: "greeters"}},
			BuildCommand{},
		},
	})
	m := f.greeters(t)
	require.NoError(t, m.FindAll(context.Background()))

	cfg, err := f.core.Plugins().Config("plugin_a")
	require.NoError(t, err)
	require.True(t, m.Searched(cfg))
	require.Len(t, m.GetHooks(cfg), 2)
	require.Equal(t, []string{"build", "greet"}, m.GetHooksName())

	_, ok := m.GetHook(cfg, "base")
	require.False(t, ok)
	_, ok = m.GetHook(cfg, "elsewhere")
	require.False(t, ok)
}

func TestBaseManager_FindHooksImpl_DuplicateHook(t *testing.T) {
	f := newFixture(t, allPlugins, []string{"apollo"}, map[string][]any{
		"apollo": {greet("apollo"), greet("apollo")},
	})
	m := f.greeters(t)
	cfg := f.project(t, "apollo")

	err := m.FindHooksImpl(context.Background(), cfg)
	require.ErrorIs(t, err, ErrDuplicateHook)
	require.ErrorContains(t, err, "'greet' already exists in project 'apollo'")
	require.False(t, m.Searched(cfg))
	require.Empty(t, m.GetHooks(cfg))
}

func TestBaseManager_FindHooksImpl_UnlinkedHook(t *testing.T) {
	f := newFixture(t, allPlugins, []string{"apollo"}, map[string][]any{
		"apollo": {greetHook{name: "orphan"}},
	})

	err := f.greeters(t).FindHooksImpl(context.Background(), f.project(t, "apollo"))
	require.ErrorIs(t, err, config.ErrImproperlyConfigured)
	require.ErrorContains(t, err, "hook must be linked to a manager")
}

func TestBaseManager_AddHookImpl(t *testing.T) {
	f := newFixture(t, allPlugins, []string{"apollo"}, nil)
	m := f.greeters(t)
	cfg := f.project(t, "apollo")

	require.ErrorIs(t, m.IsHooked(), ErrNotHooked)
	require.NoError(t, m.AddHookImpl(cfg, greet("apollo")))
	require.NoError(t, m.IsHooked())
	require.ErrorIs(t, m.AddHookImpl(cfg, greet("apollo")), ErrDuplicateHook)

	labels, byLabel := m.HooksByKind(registry.KindProject)
	require.Equal(t, []string{"apollo"}, labels)
	require.Len(t, byLabel["apollo"], 1)
}

func TestNameOf(t *testing.T) {
	require.Equal(t, "greet", NameOf(greet("x")))
	require.Equal(t, "build", NameOf(BuildCommand{}))
	require.Equal(t, "build", NameOf(&BuildCommand{}))
}
