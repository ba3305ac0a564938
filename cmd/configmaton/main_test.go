package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/configmaton"
)

func TestRunWritesLoadableImage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "image.bin")

	doc := `[{"when":{"foo":"a"},"run":["bar"]}]`
	code, err := run(strings.NewReader(doc), out, "")
	require.NoError(t, err)
	require.Equal(t, 0, code)

	buf, err := os.ReadFile(out)
	require.NoError(t, err)

	aut, err := configmaton.Read(buf)
	require.NoError(t, err)

	c := configmaton.New(aut)
	c.Set("foo", []byte("a"))
	cmd, ok := c.PopCommand()
	require.True(t, ok)
	require.Equal(t, []byte("bar"), cmd)
}

func TestRunWritesDotFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "graph.dot")

	doc := `[{"when":{"foo":"a"},"run":["bar"]}]`
	code, err := run(strings.NewReader(doc), "", out)
	require.NoError(t, err)
	require.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("digraph G {")))
}

func TestRunRejectsMalformedRuleDocument(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "image.bin")

	code, err := run(strings.NewReader(`[{"run":["bar"]}]`), out, "")
	require.Error(t, err)
	require.Equal(t, 1, code)
}

func TestRunRequiresOutputOrDot(t *testing.T) {
	code, err := run(strings.NewReader(`[]`), "", "")
	require.Error(t, err)
	require.Equal(t, 1, code)
}
