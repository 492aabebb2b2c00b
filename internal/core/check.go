package core

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/management"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
	"github.com/zjrosen/socon/internal/watcher"
)

// CheckCommand verifies that every installed project loaded and that every
// manager can discover its hooks in every user config.
type CheckCommand struct {
	management.BaseCommand
}

func (CheckCommand) Help() string {
	return "Check the integrity of any installed projects and their managers"
}

func (CheckCommand) AddFlags(fs *pflag.FlagSet) {
	fs.Bool("show_all", false, "Show all projects error at once")
	fs.Bool("watch", false, "Run the check again whenever a source file changes")
}

func (c CheckCommand) Handle(ctx context.Context, cfg *management.Config) (string, error) {
	rt := cfg.Runtime
	if !rt.Core.Settings().Configured() {
		return "", management.NewCommandError("Settings are not configured. You must either define the environment " +
			"variable " + config.EnvSettingsModule + " or pass --settings.")
	}
	showAll, _ := cfg.GetOption("show_all", config.WithDefault(false))
	watch, _ := cfg.GetOption("watch", config.WithDefault(false))
	if cast.ToBool(watch) {
		return "", c.watch(ctx, cfg, cast.ToBool(showAll))
	}
	return "", check(ctx, rt, cfg.Out, cast.ToBool(showAll))
}

// check writes the report to t. Without showAll the first issue is returned
// as is.
func check(ctx context.Context, rt *management.Runtime, t *terminal.Writer, showAll bool) error {
	failures, err := rt.Core.Projects().Failures()
	if err != nil {
		return err
	}
	if rt.Core.Settings().GetBool(config.SkipErrorOnProjectsImport) {
		t.Sep("-", "Projects check")
		if len(failures) == 0 {
			t.Line("Nothing to report. All projects loaded successfully.\n")
		} else {
			t.Print("\n")
		}
		for _, f := range failures {
			t.Underline(f.Entry, "-", terminal.Bold)
			if !showAll {
				return f.Err
			}
			t.Line(f.Err.Error()+"\n", terminal.Red)
		}
	}

	var configs []*registry.Config
	if user := rt.Core.UserCommonConfig(); user != nil {
		configs = append(configs, user)
	}
	userConfigs, err := rt.Core.UserConfigs()
	if err != nil {
		return err
	}
	configs = append(configs, userConfigs...)

	issues := 0
	t.Sep("-", "Managers check")
	for _, m := range rt.Managers.List() {
		for _, cfg := range configs {
			err := m.FindHooksImpl(ctx, cfg)
			if err == nil {
				continue
			}
			issues++
			t.Print("\n")
			t.Underline(cfg.Name(), "-", terminal.Bold)
			if !showAll {
				return err
			}
			t.Line(err.Error()+"\n", terminal.Red)
		}
	}
	if issues == 0 {
		t.Line("Nothing to report. All managers loaded successfully.\n")
	}

	if len(failures) != 0 || issues != 0 {
		return management.NewCommandError("check found %d project loading error(s) and %d manager error(s)",
			len(failures), issues)
	}
	return nil
}

func (c CheckCommand) watch(ctx context.Context, cfg *management.Config, showAll bool) error {
	rt := cfg.Runtime
	if len(rt.Sources) == 0 || rt.Reload == nil {
		return management.NewCommandError("--watch needs source_paths on disk")
	}

	wcfg := watcher.DefaultConfig(rt.Sources...)
	if rt.WatchDebounce > 0 {
		wcfg.DebounceDur = rt.WatchDebounce
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		if err := check(ctx, rt, cfg.Out, showAll); err != nil {
			cfg.Err.Error(err.Error())
		}
		cfg.Out.Line(fmt.Sprintf("Watching %d source root(s) for changes. Press Ctrl+C to stop.", len(rt.Sources)), terminal.Cyan)

		select {
		case <-ctx.Done():
			return nil
		case <-changes:
		}
		log.Info(log.CatWatcher, "sources changed, checking again")
		next, err := rt.Reload(ctx)
		if err != nil {
			cfg.Err.Error(fmt.Sprintf("reload failed: %v", err))
			continue
		}
		rt = next
	}
}
