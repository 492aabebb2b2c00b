package management

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
)

// CommandManager is a manager whose hooks are commands, one per module of
// its lookup package.
type CommandManager struct {
	*manager.BaseManager
	subcommands bool
}

func newCommandManager(name, lookup string, core *registry.Core) *CommandManager {
	src := commandSources{importer: core.Importer(), lookup: lookup, manager: name}
	return &CommandManager{
		BaseManager: manager.NewBaseManager(name, lookup, core, manager.WithSources(src)),
		subcommands: name != CommandsManager,
	}
}

// NewCommandManager creates the "commands" manager.
func NewCommandManager(core *registry.Core) *CommandManager {
	return newCommandManager(CommandsManager, CommandsLookup, core)
}

// NewSubcommandManager creates the built-in "subcommands" manager.
func NewSubcommandManager(core *registry.Core) *CommandManager {
	return newCommandManager(SubcommandsManager, SubcommandsLookup, core)
}

// CommandManagerConstructor declares a command manager in a managers module.
func CommandManagerConstructor(name, lookup string) manager.Constructor {
	return func(d manager.Deps) (manager.Manager, error) {
		return newCommandManager(name, lookup, d.Core), nil
	}
}

// SearchCommand resolves name. The active project, see
// registry.Core.ActiveProject, is searched first. It also returns the project
// config the command was searched in, nil when none was active.
func (m *CommandManager) SearchCommand(ctx context.Context, name, project string) (Command, *registry.Config, error) {
	projectCfg, err := m.Core().ActiveProject(project)
	switch {
	case errors.Is(err, registry.ErrNoActiveProject):
		projectCfg = nil
	case errors.Is(err, registry.ErrLookup):
		return nil, nil, NewCommandError("You are looking for '%s' command in '%s' project that is not installed. "+
			"Please check your INSTALLED_PROJECTS", name, m.Core().ActiveProjectLabel(project))
	case err != nil:
		return nil, nil, err
	}

	h, err := m.SearchHookImpl(ctx, name, projectCfg)
	if errors.Is(err, manager.ErrHookNotFound) || errors.Is(err, manager.ErrNotHooked) {
		return nil, nil, fmt.Errorf("%w: '%s' command does not exist", ErrCommandNotFound, name)
	}
	if err != nil {
		return nil, nil, err
	}

	cmd, ok := h.(Command)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T hook of '%s' manager is not a command", config.ErrImproperlyConfigured, h, m.Name())
	}
	if IsProjectCommand(cmd) && projectCfg == nil {
		return nil, nil, fmt.Errorf("%w: '%s' is a project command. You must either define the environment "+
			"variable %s or add the --project argument to the command", ErrRequiresProject, name, config.EnvActiveProject)
	}
	return cmd, projectCfg, nil
}

// ConfigCommands lists the commands of one config.
type ConfigCommands struct {
	Label    string
	Commands []Command
}

// TierCommands lists the configs of one tier that hold commands.
type TierCommands struct {
	Kind    registry.Kind
	Configs []ConfigCommands
}

// HooksByTier groups the discovered commands by tier, most important tier
// first, configs in discovery order. Call FindAll first.
func (m *CommandManager) HooksByTier() []TierCommands {
	var tiers []TierCommands
	for _, kind := range registry.ByImportance() {
		labels, byLabel := m.HooksByKind(kind)
		tier := TierCommands{Kind: kind}
		for _, label := range labels {
			var cmds []Command
			for _, h := range byLabel[label] {
				if c, ok := h.(Command); ok {
					cmds = append(cmds, c)
				}
			}
			if len(cmds) > 0 {
				tier.Configs = append(tier.Configs, ConfigCommands{Label: label, Commands: cmds})
			}
		}
		if len(tier.Configs) > 0 {
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

func commandLine(c Command) string {
	kind := "G"
	if IsProjectCommand(c) {
		kind = "P"
	}
	return fmt.Sprintf("    %s (%s)", manager.NameOf(c), kind)
}

// WriteUsage writes the command listing used by help.
func (m *CommandManager) WriteUsage(w *terminal.Writer, prog string) {
	tiers := m.HooksByTier()
	if m.subcommands {
		w.Line("List of available subcommands:")
		for _, tier := range tiers {
			for _, cfg := range tier.Configs {
				for _, c := range cfg.Commands {
					w.Line(commandLine(c))
				}
			}
		}
		return
	}

	w.Line(strings.Join([]string{
		"",
		fmt.Sprintf("Type '%s help <subcommand>' for help on a specific general (G) subcommand. If this command ", prog),
		"is a project (P) subcommand. Add --project <label> to the arguments.",
		"",
	}, "\n"))
	for i, tier := range tiers {
		w.Underline(tier.Kind.Title()+" commands", "-", terminal.Bold)
		for j, cfg := range tier.Configs {
			w.Line(fmt.Sprintf("  [%s]\n", cfg.Label), terminal.Cyan)
			for _, c := range cfg.Commands {
				w.Line(commandLine(c))
			}
			if j < len(tier.Configs)-1 {
				w.Print("\n")
			}
		}
		if i < len(tiers)-1 {
			w.Print("\n")
		}
	}
}

type commandSources struct {
	importer module.Importer
	lookup   string
	manager  string
}

// Candidates lists the non-package modules of <cfg>.<lookup> whose names do
// not start with an underscore.
func (s commandSources) Candidates(ctx context.Context, cfg *registry.Config) ([]string, error) {
	pkg := module.Join(cfg.Name(), s.lookup)
	entries, err := s.importer.Submodules(ctx, pkg)
	if errors.Is(err, module.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Package || strings.HasPrefix(e.Name, "_") {
			continue
		}
		out = append(out, module.Join(pkg, e.Name))
	}
	return out, nil
}

// Load returns the hooks declared by a command module. A module declaring
// no hook but a Run entrypoint becomes a script command.
func (s commandSources) Load(ctx context.Context, location string) ([]manager.Hook, error) {
	m, err := s.importer.Import(ctx, location)
	if err != nil {
		return nil, err
	}
	var hooks []manager.Hook
	for _, sym := range m.Symbols {
		switch v := sym.Value.(type) {
		case Subcommand:
			if v.SubcommandManager() == "" {
				return nil, fmt.Errorf("%w: %T class must link a subcommand manager", config.ErrImproperlyConfigured, v)
			}
			hooks = append(hooks, v)
		case manager.Hook:
			hooks = append(hooks, v)
		}
	}
	if len(hooks) > 0 {
		return hooks, nil
	}
	if sc, ok := newScriptCommand(m, s.manager); ok {
		hooks = append(hooks, sc)
	}
	return hooks, nil
}
