package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/management"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
	"github.com/zjrosen/socon/internal/testutil"
)

func newRuntime(t *testing.T, settings map[string]any, extra ...func(*testutil.Builder)) *management.Runtime {
	t.Helper()
	t.Setenv(config.EnvActiveProject, "")
	ctx := context.Background()

	b := testutil.NewBuilder(t).
		WithCommon("mysite").
		WithProject("apollo").
		WithProject("artemis")
	for _, fn := range extra {
		fn(b)
	}
	settingsModule := ""
	if settings != nil {
		settingsModule = "mysite.settings"
		b.WithSettings(settingsModule, settings)
	}
	tbl := b.Build()
	require.NoError(t, Register(tbl))

	s, err := config.Load(ctx, tbl, settingsModule)
	require.NoError(t, err)
	core := registry.NewCore(s, tbl)
	managers := manager.NewRegistry(core)
	require.NoError(t, core.Setup(ctx))
	return &management.Runtime{Core: core, Managers: managers}
}

func runCheck(t *testing.T, ctx context.Context, rt *management.Runtime, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	r := &management.Runner{
		Prog:    "socon",
		Runtime: rt,
		Out:     terminal.New(&out, terminal.WithWidth(60), terminal.WithProfile(termenv.Ascii)),
		Err:     terminal.New(&errOut, terminal.WithWidth(60), terminal.WithProfile(termenv.Ascii)),
	}
	_, err := r.Run(ctx, "check", args, "")
	return out.String(), errOut.String(), err
}

func TestRegister(t *testing.T) {
	tbl := module.NewTable()
	require.NoError(t, Register(tbl))
	require.Equal(t, []string{
		"socon.core",
		"socon.core.management.commands.check",
		"socon.core.managers",
	}, tbl.Paths())

	require.ErrorIs(t, Register(tbl), module.ErrDuplicateModule)
}

func TestRegister_Managers(t *testing.T) {
	rt := newRuntime(t, nil)

	require.Equal(t, []string{management.CommandsManager, management.SubcommandsManager}, rt.Managers.Names())
	cm, err := rt.Commands()
	require.NoError(t, err)
	cmd, _, err := cm.SearchCommand(context.Background(), "check", "")
	require.NoError(t, err)
	require.IsType(t, CheckCommand{}, cmd)
}

func TestCheck_NotConfigured(t *testing.T) {
	rt := newRuntime(t, nil)

	_, _, err := runCheck(t, context.Background(), rt)
	var ce *management.CommandError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Error(), "Settings are not configured")
}

func TestCheck_Clean(t *testing.T) {
	rt := newRuntime(t, map[string]any{
		config.InstalledProjects: []string{"apollo", "artemis"},
	})

	out, _, err := runCheck(t, context.Background(), rt)
	require.NoError(t, err)
	require.Contains(t, out, "Projects check")
	require.Contains(t, out, "Nothing to report. All projects loaded successfully.")
	require.Contains(t, out, "Managers check")
	require.Contains(t, out, "Nothing to report. All managers loaded successfully.")
}

func TestCheck_ProjectFailures(t *testing.T) {
	rt := newRuntime(t, map[string]any{
		config.InstalledProjects: []string{"apollo", "hermes"},
	})

	_, _, err := runCheck(t, context.Background(), rt)
	require.ErrorIs(t, err, module.ErrNotFound)

	out, _, err := runCheck(t, context.Background(), rt, "--show_all")
	var ce *management.CommandError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "check found 1 project loading error(s) and 0 manager error(s)", ce.Error())
	require.Contains(t, out, "hermes\n------")
}

func TestCheck_ManagerFailures(t *testing.T) {
	broken := errors.New("syntax error")
	rt := newRuntime(t, map[string]any{
		config.InstalledProjects: []string{"apollo", "artemis"},
	}, func(b *testutil.Builder) {
		b.WithBroken("apollo.management.commands.deploy", broken)
		b.WithBroken("artemis.management.commands.deploy", broken)
	})

	_, _, err := runCheck(t, context.Background(), rt)
	require.ErrorIs(t, err, broken)
	require.ErrorIs(t, err, manager.ErrHookImport)

	out, _, err := runCheck(t, context.Background(), rt, "--show_all")
	require.EqualError(t, err, "check found 0 project loading error(s) and 2 manager error(s)")
	require.Contains(t, out, "apollo\n------")
	require.Contains(t, out, "artemis\n-------")
	require.Contains(t, out, "syntax error")
}

func TestCheck_WatchWithoutSources(t *testing.T) {
	rt := newRuntime(t, map[string]any{})

	_, _, err := runCheck(t, context.Background(), rt, "--watch")
	require.EqualError(t, err, "--watch needs source_paths on disk")
}

func TestCheck_Watch(t *testing.T) {
	rt := newRuntime(t, map[string]any{})
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	rt.Sources = []string{dir}
	rt.WatchDebounce = 10 * time.Millisecond
	rt.Reload = func(context.Context) (*management.Runtime, error) {
		reloads.Add(1)
		cancel()
		return rt, nil
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := runCheck(t, ctx, rt, "--watch")
		done <- result{out: out, err: err}
	}()

	target := filepath.Join(dir, "mod.go")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(target, []byte("package mod\n"), 0o600)
		return reloads.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Contains(t, res.out, "Watching 1 source root(s) for changes.")
		require.Contains(t, res.out, "Nothing to report. All managers loaded successfully.")
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after the context was cancelled")
	}
}
