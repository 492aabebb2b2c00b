package management

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/terminal"
	"github.com/zjrosen/socon/internal/tracing"
)

// RunCommand runs cmd with cfg. Project commands need cfg.Project and are
// checked against their allow-list first. The temp dir of cfg is removed
// afterwards.
func RunCommand(ctx context.Context, cmd Command, cfg *Config) (out string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String(tracing.AttrCommand, manager.NameOf(cmd)),
		attribute.String(tracing.AttrInvocationID, cfg.InvocationID),
	}
	if cfg.Project != nil {
		attrs = append(attrs, attribute.String(tracing.AttrProject, cfg.Project.Label()))
	}
	ctx, span := tracing.Start(ctx, tracing.SpanRunCommand, attrs...)
	defer func() { tracing.End(span, err) }()
	defer func() {
		if cerr := cfg.Cleanup(); cerr != nil {
			log.ErrorErr(log.CatCommand, "temp dir cleanup failed", cerr)
		}
	}()

	if ph, ok := cmd.(ProjectHandler); ok {
		if cfg.Project == nil {
			return "", fmt.Errorf("%w: '%s' is a project command", ErrRequiresProject, manager.NameOf(cmd))
		}
		var installed []string
		if cfg.Runtime != nil {
			labels, err := cfg.Runtime.Core.Projects().Labels()
			if err != nil {
				return "", err
			}
			installed = labels
		}
		if err := CheckAllowed(ph, cfg.Project, installed); err != nil {
			return "", err
		}
		return ph.HandleProject(ctx, cfg, cfg.Project)
	}
	if h, ok := cmd.(Handler); ok {
		return h.Handle(ctx, cfg)
	}
	return "", fmt.Errorf("%w: %T must provide a Handle method", config.ErrImproperlyConfigured, cmd)
}

// NewCobraCommand wraps cmd in a cobra command whose RunE calls run with the
// parsed positional arguments.
func NewCobraCommand(cmd Command, run func(c *cobra.Command, args []string) error) *cobra.Command {
	help := cmd.Help()
	short, _, _ := strings.Cut(help, "\n")
	c := &cobra.Command{
		Use:                manager.NameOf(cmd),
		Short:              short,
		Long:               help,
		Args:               cobra.ArbitraryArgs,
		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: cmd.KeepExtraArgs()},
		RunE:               run,
	}
	cmd.AddFlags(c.Flags())
	return c
}

// AddCommonFlags declares the flags every command accepts.
func AddCommonFlags(fs *pflag.FlagSet) {
	fs.String("settings", "", "The dotted path to a settings module, e.g. \"mysite.settings.main\". "+
		"If this isn't provided, the "+config.EnvSettingsModule+" environment variable will be used.")
	fs.String("project", "", "The project label of the command you want to start. "+
		"You can set "+config.EnvActiveProject+" to avoid passing it every time.")
	fs.Bool("traceback", false, "Report the full error chain on failure")
	fs.IntP("verbosity", "v", 1, "Verbosity level; 0=minimal output, 1=normal output, 2=verbose output, 3=very verbose output")
}

// SplitExtraArgs separates the flags none of sets declares from args. Values
// of unknown flags are only kept when attached with '='. Everything after
// "--" is positional.
func SplitExtraArgs(args []string, sets ...*pflag.FlagSet) (known, extra []string) {
	lookup := func(name string, short bool) *pflag.Flag {
		for _, fs := range sets {
			var f *pflag.Flag
			if short {
				f = fs.ShorthandLookup(name)
			} else {
				f = fs.Lookup(name)
			}
			if f != nil {
				return f
			}
		}
		return nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return append(known, args[i:]...), extra
		case strings.HasPrefix(arg, "--"):
			name, _, hasValue := strings.Cut(arg[2:], "=")
			f := lookup(name, false)
			if f == nil {
				extra = append(extra, arg)
				continue
			}
			known = append(known, arg)
			if !hasValue && f.NoOptDefVal == "" && i+1 < len(args) {
				i++
				known = append(known, args[i])
			}
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			f := lookup(arg[1:2], true)
			if f == nil {
				extra = append(extra, arg)
				continue
			}
			known = append(known, arg)
			if len(arg) == 2 && f.NoOptDefVal == "" && i+1 < len(args) {
				i++
				known = append(known, args[i])
			}
		default:
			known = append(known, arg)
		}
	}
	return known, extra
}

// Runner resolves and runs commands against a Runtime.
type Runner struct {
	Prog         string
	Version      string
	Runtime      *Runtime
	Out          *terminal.Writer
	Err          *terminal.Writer
	InvocationID string
}

// Run resolves name, in project when given, and runs it with args. A
// Subcommand dispatches its first positional argument.
func (r *Runner) Run(ctx context.Context, name string, args []string, project string) (string, error) {
	if r.Out == nil {
		r.Out = terminal.New(io.Discard)
	}
	if r.Err == nil {
		r.Err = terminal.New(io.Discard)
	}
	cm, err := r.Runtime.Commands()
	if err != nil {
		return "", err
	}
	cmd, projectCfg, err := cm.SearchCommand(ctx, name, project)
	if err != nil {
		return "", err
	}

	sc, ok := cmd.(Subcommand)
	if !ok {
		return r.execute(ctx, cmd, []string{name}, args, projectCfg, "")
	}

	scm, err := r.Runtime.CommandManager(sc.SubcommandManager())
	if err != nil {
		return "", err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", r.subcommandHelp(ctx, sc, scm, name, r.Out)
	}
	sub, subProject, err := scm.SearchCommand(ctx, args[0], project)
	if errors.Is(err, ErrCommandNotFound) {
		_ = r.subcommandHelp(ctx, sc, scm, name, r.Err)
		return "", NewCommandError("Unknown subcommand '%s'", args[0])
	}
	if err != nil {
		return "", err
	}
	if subProject == nil {
		subProject = projectCfg
	}
	return r.execute(ctx, sub, []string{name, args[0]}, args[1:], subProject, args[0])
}

// Call runs name like Run. A "--project <label>" pair in args selects the
// project.
func (r *Runner) Call(ctx context.Context, name string, args ...string) (string, error) {
	project, err := projectFromArgs(args)
	if err != nil {
		return "", err
	}
	return r.Run(ctx, name, args, project)
}

func projectFromArgs(args []string) (string, error) {
	var project string
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--project="); ok {
			project = v
			continue
		}
		if arg == "--project" {
			if i+1 >= len(args) {
				return "", NewCommandError("Project was passed but not defined")
			}
			project = args[i+1]
		}
	}
	return project, nil
}

func (r *Runner) subcommandHelp(ctx context.Context, sc Subcommand, scm *CommandManager, name string, w *terminal.Writer) error {
	if err := scm.FindAll(ctx); err != nil {
		return err
	}
	c := NewCobraCommand(sc, func(*cobra.Command, []string) error { return nil })
	c.Use = strings.TrimSpace(r.Prog+" "+name) + " SUBCOMMAND"
	c.SetOut(w)
	AddCommonFlags(c.Flags())
	if err := c.Help(); err != nil {
		return err
	}
	scm.WriteUsage(w, r.Prog)
	w.Print("\n")
	return nil
}

func (r *Runner) execute(ctx context.Context, cmd Command, path, args []string, project *registry.Config, subcommand string) (string, error) {
	prog := r.Prog
	if prog == "" {
		prog = "socon"
	}
	root := &cobra.Command{
		Use:           prog,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	AddCommonFlags(root.PersistentFlags())

	parent := root
	for _, p := range path[:len(path)-1] {
		c := &cobra.Command{Use: p}
		parent.AddCommand(c)
		parent = c
	}

	cfg := &Config{
		Subcommand:   subcommand,
		Project:      project,
		Runtime:      r.Runtime,
		InvocationID: r.InvocationID,
		Out:          r.Out,
		Err:          r.Err,
	}
	var out string
	leaf := NewCobraCommand(cmd, func(c *cobra.Command, positional []string) error {
		cfg.Flags = c.Flags()
		cfg.Args = positional
		var err error
		out, err = RunCommand(c.Context(), cmd, cfg)
		return err
	})
	if r.Version != "" {
		leaf.Version = r.Version
		leaf.SetVersionTemplate("{{.Version}}\n")
	}
	parent.AddCommand(leaf)
	leaf.InitDefaultHelpFlag()
	leaf.InitDefaultVersionFlag()

	known := args
	if cmd.KeepExtraArgs() {
		known, cfg.ExtraArgs = SplitExtraArgs(args, leaf.Flags(), root.PersistentFlags())
	}

	root.SetArgs(append(append([]string{}, path...), known...))
	root.SetOut(r.Out)
	root.SetErr(r.Err)
	log.Debug(log.CatCommand, "running command", "path", strings.Join(path, " "), "invocation", r.InvocationID)
	err := root.ExecuteContext(ctx)
	return out, err
}
