package management

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/terminal"
	"github.com/zjrosen/socon/internal/tracing"
)

// Utility is the command-line entry point: it loads the runtime for the
// requested settings, then prints help or the version or runs a command.
type Utility struct {
	Prog    string
	Version string
	Load    Loader
	Out     *terminal.Writer
	Err     *terminal.Writer
}

// NewUtility creates a Utility writing to stdout and stderr.
func NewUtility(prog, version string, load Loader) *Utility {
	return &Utility{
		Prog:    prog,
		Version: version,
		Load:    load,
		Out:     terminal.Stdout(),
		Err:     terminal.Stderr(),
	}
}

type preOptions struct {
	settings string
	project  string
	args     []string
}

// preParse extracts --settings and --project before the command is known.
// Unknown flags and parse errors are ignored.
func preParse(args []string) preOptions {
	var o preOptions
	fs := pflag.NewFlagSet("socon", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringVar(&o.settings, "settings", "", "")
	fs.StringVar(&o.project, "project", "", "")
	_ = fs.Parse(args)
	o.args = fs.Args()
	return o
}

// Execute runs argv, which excludes the program name, and returns the exit
// code.
func (u *Utility) Execute(ctx context.Context, argv []string) (code int) {
	id := uuid.NewString()
	ctx, span := tracing.Start(ctx, tracing.SpanExecute, attribute.String(tracing.AttrInvocationID, id))
	defer func() {
		span.SetAttributes(attribute.Int("socon.exit_code", code))
		span.End()
	}()

	subcommand := "help"
	var rest []string
	if len(argv) > 0 {
		subcommand, rest = argv[0], argv[1:]
	}
	pre := preParse(rest)
	settingsModule := pre.settings
	if settingsModule == "" {
		settingsModule = os.Getenv(config.EnvSettingsModule)
	}

	rt, err := u.load(ctx, settingsModule)
	if err != nil {
		u.Err.Error(fmt.Sprintf("Error: %v", err))
		return 1
	}
	log.Info(log.CatCommand, "execute", "invocation", id, "command", subcommand, "settings", settingsModule)
	span.SetAttributes(attribute.String(tracing.AttrCommand, subcommand))

	switch {
	case subcommand == "help":
		if len(pre.args) == 0 {
			u.mainHelp(ctx, rt)
			return 0
		}
		return u.run(ctx, rt, id, pre.args[0], []string{"--help"}, pre.project)
	case subcommand == "version" || (len(argv) == 1 && argv[0] == "--version"):
		u.Out.Line(u.Version)
		return 0
	case len(argv) == 1 && (argv[0] == "--help" || argv[0] == "-h"):
		u.mainHelp(ctx, rt)
		return 0
	}
	return u.run(ctx, rt, id, subcommand, rest, pre.project)
}

// load builds the runtime for settingsModule. When the settings module itself
// cannot be loaded the error is kept in Runtime.SettingsErr and a runtime
// without user settings is used. Any other failure, such as an installed unit
// that cannot be set up, is returned.
func (u *Utility) load(ctx context.Context, settingsModule string) (*Runtime, error) {
	rt, err := u.Load(ctx, settingsModule)
	if err == nil {
		return rt, nil
	}
	if settingsModule == "" || !errors.Is(err, config.ErrSettingsImport) {
		return nil, err
	}
	log.ErrorErr(log.CatConfig, "settings failed to load, using core commands only", err, "module", settingsModule)
	fallback, ferr := u.Load(ctx, "")
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	fallback.SettingsErr = err
	return fallback, nil
}

func (u *Utility) run(ctx context.Context, rt *Runtime, id, name string, args []string, project string) int {
	r := &Runner{
		Prog:         u.Prog,
		Version:      u.Version,
		Runtime:      rt,
		Out:          u.Out,
		Err:          u.Err,
		InvocationID: id,
	}
	out, err := r.Run(ctx, name, args, project)
	if out != "" {
		u.Out.Print(out)
		if !strings.HasSuffix(out, "\n") {
			u.Out.Print("\n")
		}
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrCommandNotFound) {
		u.unknownCommand(ctx, rt, name)
		return 1
	}
	u.reportError(err)
	return ExitCode(err)
}

func (u *Utility) reportError(err error) {
	var ce *CommandError
	switch {
	case errors.As(err, &ce):
		u.Err.Error(fmt.Sprintf("CommandError: %v", ce))
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrRequiresProject):
		u.Err.Error(err.Error())
	default:
		u.Err.Error(fmt.Sprintf("Error: %v", err))
	}
}

func (u *Utility) unknownCommand(ctx context.Context, rt *Runtime, name string) {
	cm, err := rt.Commands()
	if err != nil {
		u.reportError(err)
		return
	}
	if err := cm.FindAll(ctx); err != nil {
		log.ErrorErr(log.CatCommand, "command discovery failed", err)
	}

	switch {
	case rt.SettingsErr != nil:
		u.Err.Error(fmt.Sprintf("Settings error: %v", rt.SettingsErr))
	case !rt.Core.Settings().Configured():
		u.Err.Print("No Socon settings specified.\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Unknown command: '%s'", name)
	if matches := CloseMatches(name, cm.GetHooksName(), MaxSuggestions, SuggestionCutoff); len(matches) > 0 {
		if matches[0] != name {
			fmt.Fprintf(&b, ". Did you mean %s?", matches[0])
		} else {
			b.WriteString(". You might have missed to specify the project. You must either define the environment variable " +
				config.EnvActiveProject + " or add the --project argument to the command.\n" +
				"You can find below the list of the projects available: ")
			b.WriteString(strings.Join(cm.GetHookConfigHolders(name), ", "))
		}
	}
	fmt.Fprintf(&b, "\nType '%s help' for usage.\n", u.Prog)
	u.Err.Print(b.String())
}

func (u *Utility) mainHelp(ctx context.Context, rt *Runtime) {
	cm, err := rt.Commands()
	if err != nil {
		u.reportError(err)
		return
	}
	if err := cm.FindAll(ctx); err != nil {
		u.reportError(err)
	}
	cm.WriteUsage(u.Out, u.Prog)

	if rt.SettingsErr != nil {
		u.Out.Print("\n")
		u.Out.Sep("-", "Settings error", terminal.Red)
		u.Out.Line(fmt.Sprintf("\nNote that only Socon core commands are listed as settings are not properly "+
			"configured (error: %v).", rt.SettingsErr))
	}

	if failures, err := rt.Core.Projects().Failures(); err == nil && len(failures) > 0 {
		u.Out.Print("\n")
		u.Out.Sep("-", "Project loading error", terminal.Red)
		u.Out.Line("\nSome of your projects didn't load correctly. If you want more information about " +
			"the errors, use the 'check' command. List of projects:")
		for _, f := range failures {
			u.Out.Line(f.Entry)
		}
	}
	u.Out.Print("\n")
}

// CallCommand runs a command programmatically against rt and returns its
// output. A "--project <label>" pair in args selects the project.
func CallCommand(ctx context.Context, rt *Runtime, name string, args ...string) (string, error) {
	r := &Runner{
		Runtime:      rt,
		Out:          terminal.Stdout(),
		Err:          terminal.Stderr(),
		InvocationID: uuid.NewString(),
	}
	return r.Call(ctx, name, args...)
}
