package parserpool

import (
	"context"
	"testing"
	"time"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/stretchr/testify/require"
)

func TestParsePythonProducesTree(t *testing.T) {
	p := New(1, time.Second)
	res, err := p.Parse(context.Background(), "a.py", api.LangPython, []byte("def f():\n    return 1\n"), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Tree)
	require.False(t, res.TimedOut)
	require.Empty(t, res.Diagnostics)
}

func TestParseRecordsDiagnosticsOnSyntaxError(t *testing.T) {
	p := New(1, time.Second)
	res, err := p.Parse(context.Background(), "bad.py", api.LangPython, []byte("def f(:\n"), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Tree, "partial AST is still returned on parse error")
	require.NotEmpty(t, res.Diagnostics)
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := New(1, time.Second)
	_, err := p.Parse(context.Background(), "a.txt", api.LangUnknown, []byte("x"), nil)
	require.Error(t, err)
}

func TestParseHonorsWallClockDeadline(t *testing.T) {
	p := New(1, time.Nanosecond)
	res, err := p.Parse(context.Background(), "a.py", api.LangPython, []byte("def f():\n    return 1\n"), nil)
	require.NoError(t, err)
	require.True(t, res.TimedOut)
}
