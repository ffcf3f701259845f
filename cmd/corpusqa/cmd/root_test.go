package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusqa/corpusqa/pkg/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "search", "ask", "doctor", "config", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "corpusqa")
	assert.Contains(t, out, version.Version)
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
	assert.NotContains(t, out, "commit")
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
	assert.Contains(t, out, `"go_version"`)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "corpusqa version")
}

func TestConfigInitWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpusqa.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rrf_constant: 60")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpusqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))

	_, err := execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: local")
	assert.Contains(t, out, "rrf_constant: 60")
}

func TestSearchRequiresQueryArgument(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
}

func TestAskRequiresQuestionArgument(t *testing.T) {
	_, err := execute(t, "ask")
	require.Error(t, err)
}
