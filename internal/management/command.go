// Package management resolves and runs management commands: the hooks of the
// "commands" manager and of subcommand managers.
package management

import (
	"context"
	"slices"

	"github.com/spf13/pflag"

	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/registry"
)

const (
	// CommandsManager is the manager every command links to by default.
	CommandsManager = "commands"
	// CommandsLookup holds one command per module.
	CommandsLookup = "management.commands"
	// SubcommandsManager is the built-in subcommand manager.
	SubcommandsManager = "subcommands"
	// SubcommandsLookup holds the built-in subcommands.
	SubcommandsLookup = "management.commands.subcommands"
	// AllProjects in an allow-list lets every project run the command.
	AllProjects = "__all__"
)

// Command is a hook that can be run from the command line.
type Command interface {
	manager.Hook
	Help() string
	// AddFlags declares command specific flags.
	AddFlags(fs *pflag.FlagSet)
	// KeepExtraArgs passes unknown flags through in Config.ExtraArgs instead
	// of failing.
	KeepExtraArgs() bool
}

// Handler is implemented by general commands.
type Handler interface {
	Handle(ctx context.Context, cfg *Config) (string, error)
}

// ProjectHandler is implemented by commands that run against a project.
type ProjectHandler interface {
	// AllowedProjects is the allow-list of project labels. Empty or
	// containing AllProjects means unrestricted.
	AllowedProjects() []string
	HandleProject(ctx context.Context, cfg *Config, project *registry.Config) (string, error)
}

// Subcommand dispatches its first positional argument to the commands of
// another manager.
type Subcommand interface {
	Command
	SubcommandManager() string
}

// BaseCommand provides defaults for Command. Embed it and implement Handle.
// The command name derives from the type name, see manager.NameOf.
type BaseCommand struct{}

func (BaseCommand) Name() string            { return "" }
func (BaseCommand) ManagerName() string     { return CommandsManager }
func (BaseCommand) Help() string            { return "" }
func (BaseCommand) AddFlags(*pflag.FlagSet) {}
func (BaseCommand) KeepExtraArgs() bool     { return false }

// BaseProjectCommand provides defaults for project commands. Embed it and
// implement HandleProject.
type BaseProjectCommand struct {
	BaseCommand
}

func (BaseProjectCommand) AllowedProjects() []string { return []string{AllProjects} }

// BaseSubcommand provides defaults for Subcommand. Manager must name the
// manager holding the subcommands.
type BaseSubcommand struct {
	BaseCommand
	Manager string
}

func (b BaseSubcommand) SubcommandManager() string { return b.Manager }

// IsProjectCommand reports whether c runs against a project.
func IsProjectCommand(c Command) bool {
	_, ok := c.(ProjectHandler)
	return ok
}

// Unrestricted reports whether an allow-list admits every project.
func Unrestricted(allowed []string) bool {
	return len(allowed) == 0 || slices.Contains(allowed, AllProjects)
}
