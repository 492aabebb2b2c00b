package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/module"
)

func TestBuilder_Build(t *testing.T) {
	boom := errors.New("boom")
	tbl := NewBuilder(t).
		WithProject("apollo", Labeled("apo"), Commands(map[string]any{"build": "hook"})).
		WithPlugin("plug").
		WithSettings("mysettings", map[string]any{"B": 2, "A": 1}).
		WithBroken("broken", boom).
		Build()
	ctx := context.Background()

	m, err := tbl.Import(ctx, "apollo.projects")
	require.NoError(t, err)
	v, ok := m.Lookup("Config0")
	require.True(t, ok)
	require.Equal(t, module.ConfigDecl{Label: "apo"}, v)

	_, err = tbl.Import(ctx, "apollo.management.commands.build")
	require.NoError(t, err)

	_, err = tbl.Import(ctx, "plug.plugins")
	require.ErrorIs(t, err, module.ErrNotFound)

	m, err = tbl.Import(ctx, "mysettings")
	require.NoError(t, err)
	require.Equal(t, "A", m.Symbols[0].Name)

	_, err = tbl.Import(ctx, "broken")
	require.ErrorIs(t, err, boom)
}

func TestTempTree(t *testing.T) {
	root := TempTree(t, map[string]string{"a/b.yaml": "X: 1\n"})
	data, err := os.ReadFile(filepath.Join(root, "a", "b.yaml"))
	require.NoError(t, err)
	require.Equal(t, "X: 1\n", string(data))
}
