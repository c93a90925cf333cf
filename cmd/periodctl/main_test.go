package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := run(nil, strings.NewReader(""), new(bytes.Buffer), stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "usage: periodctl")
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	stderr := new(bytes.Buffer)
	code := run([]string{"archive-all"}, strings.NewReader(""), new(bytes.Buffer), stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), `unknown command "archive-all"`)
}

func TestStringListSplitsValues(t *testing.T) {
	var s stringList
	require.NoError(t, s.Set("m-1, m-2"))
	require.NoError(t, s.Set("m-3"))
	require.Equal(t, stringList{"m-1", "m-2", "m-3"}, s)
	require.Equal(t, "m-1,m-2,m-3", s.String())
}
