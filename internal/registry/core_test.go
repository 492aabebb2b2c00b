package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/testutil"
)

func newCoreFixture(t *testing.T, settings map[string]any, extra ...func(*testutil.Builder)) (*Core, *module.Table) {
	t.Helper()
	b := testutil.NewBuilder(t).
		WithCommon(CoreName).
		WithCommon("mysettings").
		WithSettings("mysettings.dev", settings).
		WithPlugin("plugin_a").
		WithProject("apollo").
		WithProject("artemis")
	for _, fn := range extra {
		fn(b)
	}
	tbl := b.Build()

	s, err := config.Load(context.Background(), tbl, "mysettings.dev")
	require.NoError(t, err)
	return NewCore(s, tbl), tbl
}

func TestCore_Setup_Order(t *testing.T) {
	core, _ := newCoreFixture(t, map[string]any{
		config.InstalledPlugins:  []string{"plugin_a"},
		config.InstalledProjects: []string{"apollo", "artemis"},
	})
	loader := &recordingLoader{}
	core.SetManagerLoader(loader)

	require.False(t, core.Ready())
	require.NoError(t, core.Setup(context.Background()))
	require.True(t, core.Ready())

	require.Equal(t, []string{
		"plugins:plugin_a",
		"projects:apollo",
		"projects:artemis",
		"common:core",
		"common:mysettings",
	}, loader.loaded)
}

func TestCore_Accessors(t *testing.T) {
	core, _ := newCoreFixture(t, map[string]any{
		config.InstalledPlugins:  []string{"plugin_a"},
		config.InstalledProjects: []string{"artemis", "apollo"},
	})
	require.NoError(t, core.Setup(context.Background()))

	coreCfg, err := core.CoreConfig()
	require.NoError(t, err)
	require.Equal(t, CoreName, coreCfg.Name())
	require.Equal(t, CoreLabel, coreCfg.Label())
	require.Equal(t, KindCommon, coreCfg.Kind())

	user := core.UserCommonConfig()
	require.NotNil(t, user)
	require.Equal(t, "mysettings", user.Name())

	configs, err := core.UserConfigs()
	require.NoError(t, err)
	labels := make([]string, len(configs))
	for i, c := range configs {
		labels[i] = c.Label()
	}
	require.Equal(t, []string{"plugin_a", "artemis", "apollo"}, labels)

	require.Equal(t, []string{"common", "plugins", "projects"}, core.RegistriesByImportance())
	require.Same(t, core.Projects(), core.Store(KindProject))
	require.Same(t, core.Plugins(), core.Store(KindPlugin))
	require.Same(t, core.Commons(), core.Store(KindCommon))
	require.Equal(t, "apollo", core.ContainingConfig("apollo.management.commands.build").Label())
	require.Equal(t, CoreLabel, core.ContainingConfig("socon.core.management").Label())
}

func TestCore_Setup_ProjectFailuresFollowPolicy(t *testing.T) {
	tolerant, _ := newCoreFixture(t, map[string]any{
		config.InstalledProjects: []string{"apollo", "missing"},
	})
	require.NoError(t, tolerant.Setup(context.Background()))
	failures, err := tolerant.Projects().Failures()
	require.NoError(t, err)
	require.Len(t, failures, 1)

	strict, _ := newCoreFixture(t, map[string]any{
		config.InstalledProjects:         []string{"apollo", "missing"},
		config.SkipErrorOnProjectsImport: false,
	})
	require.ErrorIs(t, strict.Setup(context.Background()), module.ErrNotFound)
	require.False(t, strict.Ready())
	require.True(t, strict.Plugins().Ready())
	require.False(t, strict.Commons().Ready())
}

func TestCore_Setup_PluginFailureIsFatal(t *testing.T) {
	core, _ := newCoreFixture(t, map[string]any{
		config.InstalledPlugins: []string{"missing"},
	})
	require.ErrorIs(t, core.Setup(context.Background()), module.ErrNotFound)
	require.False(t, core.Projects().Ready())
}

func TestCore_WithoutSettingsModule(t *testing.T) {
	tbl := testutil.NewBuilder(t).WithCommon(CoreName).Build()
	s, err := config.Load(context.Background(), tbl, "")
	require.NoError(t, err)

	core := NewCore(s, tbl)
	require.NoError(t, core.Setup(context.Background()))
	require.Nil(t, core.UserCommonConfig())
	labels, err := core.Commons().Labels()
	require.NoError(t, err)
	require.Equal(t, []string{CoreLabel}, labels)
}

func TestCore_ActiveProject(t *testing.T) {
	core, _ := newCoreFixture(t, map[string]any{
		config.InstalledProjects: []string{"apollo", "artemis"},
	})
	require.NoError(t, core.Setup(context.Background()))

	t.Setenv(config.EnvActiveProject, "")
	_, err := core.ActiveProject("")
	require.ErrorIs(t, err, ErrNoActiveProject)
	require.ErrorContains(t, err, "Cannot autodetect any project. You can find below the list of the available projects:\n['apollo', 'artemis']")

	p, err := core.ActiveProject("artemis")
	require.NoError(t, err)
	require.Equal(t, "artemis", p.Label())

	t.Setenv(config.EnvActiveProject, "apollo")
	p, err = core.ActiveProject("")
	require.NoError(t, err)
	require.Equal(t, "apollo", p.Label())

	_, err = core.ActiveProject("zeus")
	require.ErrorIs(t, err, ErrLookup)
}

func TestCore_Reset(t *testing.T) {
	core, _ := newCoreFixture(t, map[string]any{config.InstalledProjects: []string{"apollo"}})
	require.NoError(t, core.Setup(context.Background()))
	core.Reset()
	require.False(t, core.Ready())
	_, err := core.CoreConfig()
	require.ErrorIs(t, err, ErrNotReady)
	t.Setenv(config.EnvActiveProject, "")
	_, err = core.ActiveProject("")
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, core.Setup(context.Background()))
	require.True(t, core.Ready())
}
