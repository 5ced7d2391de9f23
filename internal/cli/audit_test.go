package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/testutil"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

const auditTranscript = "starting audit\n" +
	report.StartMarker + "\n## Summary\n\nAcceptance criteria met.\n\n## Findings\n\n- none\n" +
	report.EndMarker + "\ndone"

type auditFixture struct {
	env      testEnv
	items    *testutil.Items
	analyzer *testutil.Analyzer
	notifier *testutil.Notifier
	clock    *testutil.FixedClock
	runIDs   *engine.FixedGenerator
}

func newAuditFixture(t *testing.T) *auditFixture {
	return &auditFixture{
		env:      newTestEnv(t, ""),
		items:    testutil.NewItems(),
		analyzer: testutil.NewAnalyzer(auditTranscript),
		notifier: &testutil.Notifier{},
		clock:    testutil.NewFixedClock(testutil.Epoch),
		runIDs:   engine.NewFixedGenerator("run-1", "run-2", "run-3"),
	}
}

// run executes the audit command and returns its stdout.
func (f *auditFixture) run(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	opts := &AuditOptions{
		RootOptions: &RootOptions{Format: format, ConfigPath: f.env.configPath},
		Items:       f.items,
		Analyzer:    f.analyzer,
		Notifier:    f.notifier,
		RunIDs:      f.runIDs,
		Clock:       f.clock,
	}
	buf := &bytes.Buffer{}
	cmd := newAuditCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return buf.String(), err
}

func TestAuditNoCandidates(t *testing.T) {
	f := newAuditFixture(t)

	out, err := f.run(t, "text")

	require.NoError(t, err)
	assert.Contains(t, out, "No audit candidates (job triage-audit)")
	assert.Empty(t, f.analyzer.Calls())
}

func TestAuditPublishesReport(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-1", Title: "Add export", Status: "in_progress"})

	out, err := f.run(t, "text")

	require.NoError(t, err)
	assert.Contains(t, out, "Outcome:   audited")
	assert.Contains(t, out, "Item:      WL-1  Add export")
	assert.Contains(t, out, "Report:    delimited")
	assert.Contains(t, out, "Acceptance criteria met.")
	assert.Equal(t, []string{"WL-1"}, f.analyzer.Calls())

	comments := f.items.Comments("WL-1")
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], engine.DefaultCommentHeading)
	assert.Equal(t, []string{"Audit: WL-1"}, f.notifier.Titles())
}

func TestAuditWritesLedger(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-1", Title: "Add export"})

	_, err := f.run(t, "text")
	require.NoError(t, err)

	st, err := store.Open(f.env.path("ampa.db"))
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "WL-1", runs[0].ItemID)
	assert.Equal(t, string(engine.OutcomeAudited), runs[0].Outcome)
	assert.True(t, runs[0].CommentPosted)
}

func TestAuditSecondRunRespectsCooldown(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-1", Title: "Add export"})

	_, err := f.run(t, "text")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	out, err := f.run(t, "text")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit candidates")
	assert.Len(t, f.analyzer.Calls(), 1)

	f.clock.Advance(6 * time.Hour)
	out, err = f.run(t, "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome:   audited")
	assert.Len(t, f.analyzer.Calls(), 2)
}

func TestAuditDryRun(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-3", Title: "Fix login"})

	out, err := f.run(t, "text", "--dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "Outcome:   selected")
	assert.NotContains(t, out, "Exit:")
	assert.Empty(t, f.analyzer.Calls())
	assert.Equal(t, 0, f.items.CommentCount())
	assert.NoFileExists(t, f.env.path("cooldown.json"))
}

func TestAuditCompletesMergedItem(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-4", Title: "Ship it"})
	f.analyzer.Default = analyzer.Transcript{
		Text: auditTranscript + "\nMerged in https://github.com/acme/app/pull/4. Ready to close.",
	}

	out, err := f.run(t, "text")

	require.NoError(t, err)
	assert.Contains(t, out, "Outcome:   completed")
	assert.Contains(t, out, "Merged PR: yes (reference)")
	updates := f.items.Updates("WL-4")
	require.Len(t, updates, 1)
	assert.Equal(t, "completed", updates[0].Status)
	assert.Equal(t, "in_review", updates[0].Stage)
	assert.Equal(t, []string{"Audit: WL-4", "Completed: WL-4"}, f.notifier.Titles())
}

func TestAuditFailedInvocationExitsOne(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-5", Title: "Broken"})
	f.analyzer.Default = analyzer.Transcript{Text: "spawn failed: no such file", ExitCode: analyzer.ExitSpawnError}

	out, err := f.run(t, "text")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "audit of WL-5 failed (exit 127)")
	assert.Contains(t, out, "Outcome:   audit_failed")
	assert.Contains(t, out, "Failures (")
}

func TestAuditVerboseDiagnosticsGoToStderr(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-1", Title: "Add export"})

	opts := &AuditOptions{
		RootOptions: &RootOptions{Format: "json", ConfigPath: f.env.configPath, Verbose: true},
		Items:       f.items,
		Analyzer:    f.analyzer,
		Notifier:    f.notifier,
		RunIDs:      f.runIDs,
		Clock:       f.clock,
	}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newAuditCommand(opts)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(nil)
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(), "run run-1: job=triage-audit eligible=1 outcome=audited")
	assert.Contains(t, stderr.String(), "run run-1: report_source=delimited comment_posted=true")
	assert.NotContains(t, stdout.String(), "report_source=delimited comment_posted")
	var resp map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp), "stdout must stay valid JSON")
}

func TestAuditJSONOutput(t *testing.T) {
	f := newAuditFixture(t)
	f.items.AddToStage("in_review", workitem.Candidate{ID: "WL-1", Title: "Add export"})

	out, err := f.run(t, "json")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data["run_id"])
	assert.Equal(t, "audited", resp.Data["outcome"])
	assert.Equal(t, "delimited", resp.Data["report_source"])
	assert.Equal(t, []any{}, resp.Data["failures"])
}

func TestAuditMissingConfigFile(t *testing.T) {
	opts := &AuditOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: t.TempDir() + "/missing.yaml"},
		Items:       testutil.NewItems(),
		Analyzer:    testutil.NewAnalyzer(""),
	}
	cmd := newAuditCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestAuditRejectsArguments(t *testing.T) {
	f := newAuditFixture(t)

	_, err := f.run(t, "text", "WL-1")
	require.Error(t, err)
}

func TestCycleExitError(t *testing.T) {
	parseOnly := engine.CycleResult{
		Outcome:  engine.OutcomeAudited,
		Failures: []*engine.StepError{{Kind: engine.FailureParse, Step: "extract report", Err: assert.AnError}},
	}
	assert.NoError(t, cycleExitError(parseOnly))

	persistence := engine.CycleResult{
		Outcome:  engine.OutcomeAudited,
		Failures: []*engine.StepError{{Kind: engine.FailurePersistence, Step: "comment", Err: assert.AnError}},
	}
	err := cycleExitError(persistence)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "PERSISTENCE_FAILURE")
}
