package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/testutil"
)

func runCooldownCmd(t *testing.T, env testEnv, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCooldownCommand(&RootOptions{Format: format, ConfigPath: env.configPath})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func seedFileCooldowns(t *testing.T, env testEnv, jobID string, records cooldown.Records) {
	t.Helper()
	s := cooldown.NewFileStore(env.path("cooldown.json"))
	require.NoError(t, s.Put(context.Background(), jobID, records))
}

func TestCooldownListEmpty(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := runCooldownCmd(t, env, "text", "list")

	require.NoError(t, err)
	assert.Equal(t, "No cooldown records for job triage-audit\n", out)
}

func TestCooldownListOldestFirst(t *testing.T) {
	env := newTestEnv(t, "")
	seedFileCooldowns(t, env, "triage-audit", cooldown.Records{
		"WL-2": testutil.Epoch.Add(-time.Hour),
		"WL-1": testutil.Epoch.Add(-3 * time.Hour),
		"WL-3": testutil.Epoch,
	})

	out, err := runCooldownCmd(t, env, "text", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ITEM"))
	assert.True(t, strings.HasPrefix(lines[1], "WL-1"))
	assert.Contains(t, lines[1], "2025-06-01T09:00:00Z")
	assert.True(t, strings.HasPrefix(lines[2], "WL-2"))
	assert.True(t, strings.HasPrefix(lines[3], "WL-3"))
}

func TestCooldownListOtherJob(t *testing.T) {
	env := newTestEnv(t, "")
	seedFileCooldowns(t, env, "nightly", cooldown.Records{"WL-9": testutil.Epoch})

	out, err := runCooldownCmd(t, env, "json", "list", "--job", "nightly")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			JobID string          `json:"job_id"`
			Items []CooldownEntry `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "nightly", resp.Data.JobID)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "WL-9", resp.Data.Items[0].ItemID)
	assert.True(t, testutil.Epoch.Equal(resp.Data.Items[0].LastAudit))
}

func TestCooldownReset(t *testing.T) {
	env := newTestEnv(t, "")
	seedFileCooldowns(t, env, "triage-audit", cooldown.Records{
		"WL-1": testutil.Epoch,
		"WL-2": testutil.Epoch,
	})

	out, err := runCooldownCmd(t, env, "text", "reset", "WL-1")
	require.NoError(t, err)
	assert.Equal(t, "Reset cooldown for WL-1 (job triage-audit)\n", out)

	records, err := cooldown.NewFileStore(env.path("cooldown.json")).Get(context.Background(), "triage-audit")
	require.NoError(t, err)
	_, ok := records.Last("WL-1")
	assert.False(t, ok)
	_, ok = records.Last("WL-2")
	assert.True(t, ok, "other items must be preserved")
}

func TestCooldownResetUnknownItem(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := runCooldownCmd(t, env, "text", "reset", "WL-404")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no cooldown record for WL-404")
}

func TestCooldownSQLiteBackendFromEnv(t *testing.T) {
	env := newTestEnv(t, "")
	dbPath := env.path("state/cooldown.db")
	t.Setenv("AMPA_COOLDOWN_BACKEND", "sqlite")
	t.Setenv("AMPA_COOLDOWN_PATH", dbPath)

	st, err := openStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), "triage-audit", cooldown.Records{"WL-5": testutil.Epoch}))
	require.NoError(t, st.Close())

	out, err := runCooldownCmd(t, env, "text", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "WL-5")

	_, err = runCooldownCmd(t, env, "text", "reset", "WL-5")
	require.NoError(t, err)

	st, err = store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	records, err := st.Get(context.Background(), "triage-audit")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCooldownCorruptState(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, writeFile(env.path("cooldown.json"), "{not json"))

	_, err := runCooldownCmd(t, env, "text", "list")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cooldown.ErrCorruptState)
}
