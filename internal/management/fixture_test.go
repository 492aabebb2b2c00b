package management

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
	"github.com/zjrosen/socon/internal/testutil"
)

const testSettings = "mysite.settings"

type greetCommand struct {
	BaseCommand
	owner string
}

func (greetCommand) Help() string { return "Greet someone\n\nLonger description." }

func (greetCommand) AddFlags(fs *pflag.FlagSet) {
	fs.String("name", "world", "Who to greet")
}

func (c greetCommand) Handle(_ context.Context, cfg *Config) (string, error) {
	name, err := cfg.GetOption("name")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hello %v from %s", name, c.owner), nil
}

type deployCommand struct {
	BaseProjectCommand
	allowed []string
}

func (c deployCommand) AllowedProjects() []string { return c.allowed }

func (deployCommand) HandleProject(_ context.Context, _ *Config, project *registry.Config) (string, error) {
	return "deployed " + project.Label(), nil
}

type failCommand struct{ BaseCommand }

func (failCommand) Handle(context.Context, *Config) (string, error) {
	return "", &CommandError{Err: errors.New("it broke"), ReturnCode: 3}
}

type dbCommand struct{ BaseSubcommand }

func (dbCommand) Help() string { return "Database operations" }

type migrateCommand struct{ BaseCommand }

func (migrateCommand) ManagerName() string { return SubcommandsManager }

func (migrateCommand) AddFlags(fs *pflag.FlagSet) {
	fs.Bool("fake", false, "Mark migrations as run")
}

func (migrateCommand) Handle(_ context.Context, cfg *Config) (string, error) {
	fake, err := cfg.GetOption("fake")
	if err != nil {
		return "", err
	}
	sub, err := cfg.GetOption("subcommand")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v fake=%v", sub, fake), nil
}

// coreManagers declares the command managers the built-in unit provides.
func coreManagers() testutil.UnitOption {
	return testutil.Managers(
		CommandManagerConstructor(CommandsManager, CommandsLookup),
		CommandManagerConstructor(SubcommandsManager, SubcommandsLookup),
	)
}

func echoScript(args []string) (string, error) {
	return strings.Join(args, ","), nil
}

// newTable builds the units used across the package tests:
//   - socon.core with greet, fail, db and the migrate subcommand
//   - mysite, the user common config, overriding greet and adding deploy
//     (apollo only) and the hello script
//   - apollo and artemis projects, apollo overriding greet
func newTable(t *testing.T, extra ...func(*testutil.Builder)) *module.Table {
	t.Helper()
	b := testutil.NewBuilder(t).
		WithCommon(registry.CoreName,
			coreManagers(),
			testutil.Commands(map[string]any{
				"greet": greetCommand{owner: "core"},
				"fail":  failCommand{},
				"db":    dbCommand{BaseSubcommand{Manager: SubcommandsManager}},
			})).
		WithModule(module.Join(registry.CoreName, SubcommandsLookup, "migrate"), module.Sym("Command", migrateCommand{})).
		WithCommon("mysite", testutil.Commands(map[string]any{
			"greet":  greetCommand{owner: "mysite"},
			"deploy": deployCommand{allowed: []string{"apollo"}},
		})).
		WithModule("mysite.management.commands.hello",
			module.Sym(ScriptRun, module.Entrypoint(echoScript)),
			module.Sym(ScriptHelp, "Echo the arguments")).
		WithModule("mysite.management.commands._private", module.Sym("Command", greetCommand{owner: "private"})).
		WithSettings(testSettings, map[string]any{
			config.InstalledProjects: []string{"apollo", "artemis"},
		}).
		WithProject("apollo", testutil.Commands(map[string]any{
			"greet": greetCommand{owner: "apollo"},
		})).
		WithProject("artemis")
	for _, fn := range extra {
		fn(b)
	}
	return b.Build()
}

func tableLoader(tbl *module.Table) Loader {
	return func(ctx context.Context, settingsModule string) (*Runtime, error) {
		s, err := config.Load(ctx, tbl, settingsModule)
		if err != nil {
			return nil, err
		}
		core := registry.NewCore(s, tbl)
		managers := manager.NewRegistry(core)
		if err := core.Setup(ctx); err != nil {
			return nil, err
		}
		return &Runtime{Core: core, Managers: managers}, nil
	}
}

func newRuntime(t *testing.T, extra ...func(*testutil.Builder)) *Runtime {
	t.Helper()
	t.Setenv(config.EnvActiveProject, "")
	rt, err := tableLoader(newTable(t, extra...))(context.Background(), testSettings)
	require.NoError(t, err)
	return rt
}

func plainWriter(buf *bytes.Buffer) *terminal.Writer {
	return terminal.New(buf, terminal.WithWidth(60), terminal.WithProfile(termenv.Ascii))
}

func newRunner(rt *Runtime, out, errOut *bytes.Buffer) *Runner {
	return &Runner{Prog: "socon", Runtime: rt, Out: plainWriter(out), Err: plainWriter(errOut)}
}

func commands(t *testing.T, rt *Runtime) *CommandManager {
	t.Helper()
	cm, err := rt.Commands()
	require.NoError(t, err)
	return cm
}
