package management

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		args    []string
		project string
		want    string
	}{
		{name: "default flag", command: "greet", want: "hello world from mysite"},
		{name: "flag value", command: "greet", args: []string{"--name", "bob"}, want: "hello bob from mysite"},
		{name: "project override", command: "greet", args: []string{"--name=ann"}, project: "apollo", want: "hello ann from apollo"},
		{name: "project command", command: "deploy", project: "apollo", want: "deployed apollo"},
		{name: "script keeps unknown flags", command: "hello", args: []string{"a", "--loud", "-x=1", "b"}, want: "a,b,--loud,-x=1"},
		{name: "subcommand", command: "db", args: []string{"migrate", "--fake"}, want: "migrate fake=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			got, err := newRunner(rt, &out, &errOut).Run(ctx, tt.command, tt.args, tt.project)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunner_Run_Forbidden(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer

	_, err := newRunner(rt, &out, &errOut).Run(context.Background(), "deploy", nil, "artemis")
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, "'artemis' project does not have access to this command.\nList of authorized projects:\napollo", err.Error())
}

func TestRunner_Run_CommandError(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer

	_, err := newRunner(rt, &out, &errOut).Run(context.Background(), "fail", nil, "")
	require.EqualError(t, err, "it broke")
	require.Equal(t, 3, ExitCode(err))
}

func TestRunner_Run_UnknownFlag(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer

	_, err := newRunner(rt, &out, &errOut).Run(context.Background(), "greet", []string{"--nope"}, "")
	require.ErrorContains(t, err, "unknown flag: --nope")
}

func TestRunner_Run_SubcommandHelp(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer

	got, err := newRunner(rt, &out, &errOut).Run(context.Background(), "db", nil, "")
	require.NoError(t, err)
	require.Empty(t, got)
	require.Contains(t, out.String(), "socon db SUBCOMMAND")
	require.Contains(t, out.String(), "List of available subcommands:\n    migrate (G)\n")
}

func TestRunner_Run_UnknownSubcommand(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer

	_, err := newRunner(rt, &out, &errOut).Run(context.Background(), "db", []string{"rollback"}, "")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "Unknown subcommand 'rollback'", ce.Error())
	require.NotErrorIs(t, err, ErrCommandNotFound)
	require.Contains(t, errOut.String(), "List of available subcommands:")
}

func TestRunner_Call_Project(t *testing.T) {
	rt := newRuntime(t)
	var out, errOut bytes.Buffer
	r := newRunner(rt, &out, &errOut)

	got, err := r.Call(context.Background(), "deploy", "--project", "apollo")
	require.NoError(t, err)
	require.Equal(t, "deployed apollo", got)

	_, err = r.Call(context.Background(), "deploy", "--project")
	require.EqualError(t, err, "Project was passed but not defined")
}

func TestCallCommand(t *testing.T) {
	rt := newRuntime(t)

	got, err := CallCommand(context.Background(), rt, "greet", "--name", "eve", "--project=apollo")
	require.NoError(t, err)
	require.Equal(t, "hello eve from apollo", got)
}

func TestRunCommand_RequiresProject(t *testing.T) {
	rt := newRuntime(t)

	_, err := RunCommand(context.Background(), deployCommand{}, &Config{Runtime: rt})
	require.ErrorIs(t, err, ErrRequiresProject)
}

func TestRunCommand_CleansTempDir(t *testing.T) {
	var dir string
	cmd := tempCommand{dir: &dir}

	_, err := RunCommand(context.Background(), cmd, &Config{})
	require.NoError(t, err)
	require.NotEmpty(t, dir)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

type tempCommand struct {
	BaseCommand
	dir *string
}

func (c tempCommand) Handle(_ context.Context, cfg *Config) (string, error) {
	dir, err := cfg.TempDir()
	*c.dir = dir
	return "", err
}

func TestSplitExtraArgs(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("name", "", "")
	fs.BoolP("force", "f", false, "")
	fs.IntP("count", "c", 0, "")

	tests := []struct {
		name      string
		args      []string
		wantKnown []string
		wantExtra []string
	}{
		{
			name:      "known flags with values",
			args:      []string{"--name", "x", "-c", "2", "pos"},
			wantKnown: []string{"--name", "x", "-c", "2", "pos"},
		},
		{
			name:      "bool flags take no value",
			args:      []string{"--force", "pos", "-f", "pos2"},
			wantKnown: []string{"--force", "pos", "-f", "pos2"},
		},
		{
			name:      "unknown flags are extra",
			args:      []string{"--verbose", "pos", "--level=3", "-q"},
			wantKnown: []string{"pos"},
			wantExtra: []string{"--verbose", "--level=3", "-q"},
		},
		{
			name:      "double dash ends flags",
			args:      []string{"--name=y", "--", "--other", "-z"},
			wantKnown: []string{"--name=y", "--", "--other", "-z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			known, extra := SplitExtraArgs(tt.args, fs)
			require.Equal(t, tt.wantKnown, known)
			require.Equal(t, tt.wantExtra, extra)
		})
	}
}

func TestNewCobraCommand(t *testing.T) {
	c := NewCobraCommand(greetCommand{}, nil)

	require.Equal(t, "greet", c.Use)
	require.Equal(t, "Greet someone", c.Short)
	require.Equal(t, "Greet someone\n\nLonger description.", c.Long)
	require.NotNil(t, c.Flags().Lookup("name"))
	require.False(t, c.FParseErrWhitelist.UnknownFlags)
}
