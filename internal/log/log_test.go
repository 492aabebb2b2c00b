package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(Disable)

	Info(CatRegistry, "tier ready", "tier", "projects", "count", 2)

	out := buf.String()
	require.Contains(t, out, "[INFO] [registry] tier ready")
	require.Contains(t, out, "tier=projects")
	require.Contains(t, out, "count=2")
}

func TestLog_OddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(Disable)

	Warn(CatManager, "orphan", "key")
	require.Contains(t, buf.String(), "key=<missing>")
}

func TestLog_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(Disable)

	SetMinLevel(LevelWarn)
	Debug(CatConfig, "hidden")
	ErrorErr(CatConfig, "shown", errors.New("boom"))

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "error=boom")
}

func TestLog_DisabledIsNoop(t *testing.T) {
	Disable()
	require.NotPanics(t, func() { Info(CatCommand, "nothing") })
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelInfo, ParseLevel("info"))
	require.Equal(t, LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, LevelError, ParseLevel(" error "))
	require.Equal(t, LevelDebug, ParseLevel("verbose"))
}
