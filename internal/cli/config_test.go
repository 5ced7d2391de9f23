package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
)

func runConfigCmd(t *testing.T, rootOpts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewConfigCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := runConfigCmd(t, &RootOptions{Format: "text", ConfigPath: env.configPath}, "show")

	require.NoError(t, err)
	assert.Contains(t, out, "id: triage-audit")
	assert.Contains(t, out, "cooldown: 6h0m0s")
	assert.Contains(t, out, "verify_pr: false")
	assert.Contains(t, out, env.path("ampa.db"))
}

func TestConfigShowEnvOverride(t *testing.T) {
	env := newTestEnv(t, "")
	t.Setenv("AMPA_JOB_COOLDOWN", "2h")

	out, err := runConfigCmd(t, &RootOptions{Format: "text", ConfigPath: env.configPath}, "show")

	require.NoError(t, err)
	assert.Contains(t, out, "cooldown: 2h0m0s")
}

func TestConfigShowJSON(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := runConfigCmd(t, &RootOptions{Format: "json", ConfigPath: env.configPath}, "show")
	require.NoError(t, err)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	job, ok := resp.Data["job"].(map[string]any)
	require.True(t, ok, "job section missing: %v", resp.Data)
	assert.Equal(t, "triage-audit", job["id"])
	assert.Equal(t, "6h0m0s", job["cooldown"])
}

func TestConfigShowInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, writeFile(path, "log:\n  format: xml\n"))

	_, err := runConfigCmd(t, &RootOptions{Format: "text", ConfigPath: path}, "show")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log.format")
}

func TestConfigInitDefaultPath(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, err := runConfigCmd(t, &RootOptions{Format: "text"}, "init")
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+config.DefaultPath()+"\n", out)
	assert.FileExists(t, config.DefaultPath())

	// The written template loads back without a --config flag.
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Job, cfg.Job)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ampa.yaml")
	require.NoError(t, writeFile(path, "job:\n  id: custom\n"))
	opts := &RootOptions{Format: "text", ConfigPath: path}

	_, err := runConfigCmd(t, opts, "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "job:\n  id: custom\n", string(data))

	_, err = runConfigCmd(t, opts, "init", "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# AMPA Configuration")
}
