package management

import (
	"context"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"

	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
)

// Symbols a script module declares.
const (
	ScriptRun      = "Run"
	ScriptHelp     = "Help"
	ScriptProjects = "Projects"
)

// ScriptCommand runs the Run entrypoint of a script module. It is named
// after the module. Every argument, flags included, is passed through.
type ScriptCommand struct {
	name    string
	manager string
	help    string
	run     module.Entrypoint
}

// ScriptProjectCommand is a ScriptCommand restricted to projects. The project
// label is passed as the first argument.
type ScriptProjectCommand struct {
	*ScriptCommand
	projects []string
}

func newScriptCommand(m module.Module, managerName string) (Command, bool) {
	v, ok := m.Lookup(ScriptRun)
	if !ok {
		return nil, false
	}
	run, ok := v.(module.Entrypoint)
	if !ok {
		return nil, false
	}

	_, name := module.Split(m.Path)
	sc := &ScriptCommand{name: name, manager: managerName, run: run}
	if help, ok := m.Lookup(ScriptHelp); ok {
		sc.help = cast.ToString(help)
	}
	if projects, ok := m.Lookup(ScriptProjects); ok {
		return &ScriptProjectCommand{ScriptCommand: sc, projects: cast.ToStringSlice(projects)}, true
	}
	return sc, true
}

func (c *ScriptCommand) Name() string            { return c.name }
func (c *ScriptCommand) ManagerName() string     { return c.manager }
func (c *ScriptCommand) Help() string            { return c.help }
func (c *ScriptCommand) AddFlags(*pflag.FlagSet) {}
func (c *ScriptCommand) KeepExtraArgs() bool     { return true }

func (c *ScriptCommand) args(cfg *Config) []string {
	args := make([]string, 0, len(cfg.Args)+len(cfg.ExtraArgs))
	args = append(args, cfg.Args...)
	return append(args, cfg.ExtraArgs...)
}

func (c *ScriptCommand) Handle(_ context.Context, cfg *Config) (string, error) {
	return c.run(c.args(cfg))
}

func (c *ScriptProjectCommand) AllowedProjects() []string { return c.projects }

func (c *ScriptProjectCommand) HandleProject(_ context.Context, cfg *Config, project *registry.Config) (string, error) {
	return c.run(append([]string{project.Label()}, c.args(cfg)...))
}
