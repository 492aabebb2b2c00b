package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/module"
)

func settingsTable(t *testing.T) *module.Table {
	t.Helper()
	tbl := module.NewTable()
	tbl.MustRegister(module.Spec{
		Path: "mysettings.dev",
		Load: module.Static(
			module.Sym(InstalledProjects, []string{"apollo", "artemis"}),
			module.Sym("DEBUG", true),
			module.Sym("helper", "ignored"),
		),
	})
	return tbl
}

func TestLoad_LayersModuleOverDefaults(t *testing.T) {
	s, err := Load(context.Background(), settingsTable(t), "mysettings.dev")
	require.NoError(t, err)
	require.True(t, s.Configured())
	require.Equal(t, "mysettings.dev", s.Module())
	require.Equal(t, "mysettings", s.ModuleName())

	require.Equal(t, []string{"apollo", "artemis"}, s.GetStringSlice(InstalledProjects))
	require.Empty(t, s.GetStringSlice(InstalledPlugins))
	require.True(t, s.GetBool(SkipErrorOnProjectsImport))
	require.True(t, s.GetBool("DEBUG"))
	require.Nil(t, s.Get("helper"))
	require.Equal(t, []string{"DEBUG", InstalledPlugins, InstalledProjects, Logging, SkipErrorOnProjectsImport}, s.Keys())
}

func TestLoad_EmptyModuleIsUnconfigured(t *testing.T) {
	s, err := Load(context.Background(), module.NewTable(), "")
	require.NoError(t, err)
	require.False(t, s.Configured())
	require.Empty(t, s.ModuleName())
	require.Empty(t, s.GetStringSlice(InstalledProjects))
}

func TestLoad_MissingModule(t *testing.T) {
	_, err := Load(context.Background(), module.NewTable(), "nowhere")
	require.ErrorIs(t, err, ErrImproperlyConfigured)
	require.ErrorIs(t, err, module.ErrNotFound)
	require.ErrorIs(t, err, ErrSettingsImport)

	var se *SettingsError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "nowhere", se.Module)
}

func TestLoad_EnvironmentOverridesModule(t *testing.T) {
	t.Setenv("SOCON_DEBUG", "false")
	t.Setenv("SOCON_INSTALLED_PLUGINS", "plugin_a, plugin_b")

	s, err := Load(context.Background(), settingsTable(t), "mysettings.dev")
	require.NoError(t, err)
	require.False(t, s.GetBool("DEBUG"))
	require.Equal(t, []string{"plugin_a", "plugin_b"}, s.GetStringSlice(InstalledPlugins))
}

func TestConfigure(t *testing.T) {
	s, err := Configure(map[string]any{InstalledProjects: []string{"apollo"}})
	require.NoError(t, err)
	require.True(t, s.Configured())
	require.Empty(t, s.Module())
	require.Equal(t, []string{"apollo"}, s.GetStringSlice(InstalledProjects))

	_, err = Configure(map[string]any{"installed_projects": []string{}})
	require.ErrorIs(t, err, ErrInvalidSettingName)
}

func TestSettings_Lookup(t *testing.T) {
	s, err := FromSymbols("apollo.management.config", []module.Symbol{module.Sym("IMAGE", "apollo:latest")})
	require.NoError(t, err)

	v, err := s.Lookup("IMAGE")
	require.NoError(t, err)
	require.Equal(t, "apollo:latest", v)

	v, err = s.Lookup("MISSING")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = s.Lookup("MISSING", WithDefault("x"))
	require.NoError(t, err)
	require.Equal(t, "x", v)

	_, err = s.Lookup("MISSING", Strict())
	require.ErrorIs(t, err, ErrSettingNotFound)

	v, err = s.Lookup("MISSING", Strict(), WithDefault("y"))
	require.NoError(t, err)
	require.Equal(t, "y", v)
}

func TestSettings_OverrideAndRestore(t *testing.T) {
	s, err := Configure(map[string]any{"DEBUG": false})
	require.NoError(t, err)

	restoreA, err := s.Override(map[string]any{"DEBUG": true, "EXTRA": 1})
	require.NoError(t, err)
	restoreB, err := s.Override(map[string]any{"DEBUG": "0"})
	require.NoError(t, err)

	require.False(t, s.GetBool("DEBUG"))
	require.True(t, s.IsOverridden("DEBUG"))
	require.Contains(t, s.Keys(), "EXTRA")

	restoreB()
	require.True(t, s.GetBool("DEBUG"))

	restoreA()
	restoreA()
	require.False(t, s.GetBool("DEBUG"))
	require.False(t, s.IsOverridden("DEBUG"))
	require.False(t, s.IsSet("EXTRA"))

	_, err = s.Override(map[string]any{"lower": 1})
	require.ErrorIs(t, err, ErrInvalidSettingName)
}

func TestSettings_Set(t *testing.T) {
	s, err := Configure(nil)
	require.NoError(t, err)

	require.NoError(t, s.Set("COLOR", "blue"))
	require.Equal(t, "blue", s.GetString("COLOR"))
	require.True(t, s.IsOverridden("COLOR"))
	require.ErrorIs(t, s.Set("color", "red"), ErrInvalidSettingName)
}

func TestIsSettingName(t *testing.T) {
	require.True(t, IsSettingName("INSTALLED_PROJECTS"))
	require.True(t, IsSettingName("V2"))
	require.False(t, IsSettingName("Installed"))
	require.False(t, IsSettingName("_"))
	require.False(t, IsSettingName(""))
}
