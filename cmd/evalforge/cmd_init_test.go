package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spboyer/evalforge/internal/projectconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommand_WritesDefaults(t *testing.T) {
	target := filepath.Join(t.TempDir(), "my-project")

	var buf bytes.Buffer
	cmd := newInitCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{target, "--no-interactive"})
	require.NoError(t, cmd.Execute())

	path := filepath.Join(target, projectconfig.FileName)
	assert.FileExists(t, path)
	assert.Contains(t, buf.String(), "Created "+path)

	cfg, err := projectconfig.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, projectconfig.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, projectconfig.DefaultStoreDriver, cfg.Store.Driver)
	assert.Equal(t, projectconfig.DefaultEvaluationMode, cfg.Evaluation.Mode)
}

func TestInitCommand_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, projectconfig.FileName)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	cmd := newInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--no-interactive"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 9000\n", string(data))
}

func TestInitCommand_Force(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, projectconfig.FileName)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	cmd := newInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--no-interactive", "--force"})
	require.NoError(t, cmd.Execute())

	cfg, err := projectconfig.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, projectconfig.DefaultServerPort, cfg.Server.Port)
}
