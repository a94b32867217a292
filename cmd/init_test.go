package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorlabs/gantry/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInit_WritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := runCommand(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "gantry.yaml")

	path := filepath.Join(dir, "gantry.yaml")
	require.FileExists(t, path)

	// The generated file round-trips through the loader.
	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMaxRetries, cfg.Loop.MaxRetries)
	assert.Equal(t, config.DefaultSandboxRuntime, cfg.Sandbox.Runtime)
	assert.True(t, cfg.Sandbox.NetworkIsolation)
	assert.NotEmpty(t, cfg.Guardrails.AllowedCommands)
}

func TestInit_RefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gantry.yaml"), []byte("repo:\n  root: .\n"), 0644))

	_, err := runCommand(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCommand(t, "init", "--force")
	require.NoError(t, err)
}

func TestStatus_UnknownJob(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := runCommand(t, "status", "nope1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audit record")
}
