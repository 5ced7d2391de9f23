// Package harness runs audit scenarios against the real engine.
//
// A scenario describes a tracker snapshot, canned audit transcripts, and a
// flow of cycles. Each run gets a fresh in-memory SQLite database that
// serves as both the cooldown store and the run ledger, a fixed clock
// starting at testutil.Epoch, and sequential run ids (run-001, run-002, ...),
// so traces are reproducible and can be compared against golden files.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/testutil"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store     *store.Store
	items     *testutil.Items
	analyzer  *testutil.Analyzer
	host      *testutil.CodeHost
	artifacts *testutil.Artifacts
	notifier  *testutil.Notifier
	clock     *testutil.FixedClock
	runIDs    *engine.FixedGenerator
	job       engine.Job
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load items, cooldowns, and transcripts into the fakes
// 3. Run each flow step as one engine cycle, validating expect clauses
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:     st,
		items:     testutil.NewItems(),
		analyzer:  testutil.NewAnalyzer(scenario.DefaultTranscript.Text),
		host:      testutil.NewCodeHost(scenario.Merged...),
		artifacts: testutil.NewArtifacts(),
		notifier:  &testutil.Notifier{},
		clock:     testutil.NewFixedClock(testutil.Epoch),
		runIDs:    engine.NewFixedGenerator(runIDs(len(scenario.Flow))...),
		job:       scenario.Job.EngineJob(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Items:    h.items,
		Notifier: h.notifier,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func runIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%03d", i+1)
	}
	return ids
}

// setup loads the scenario's tracker snapshot, cooldown seeds, and
// transcripts. Relative times are resolved against the starting clock.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	d := scenario.DefaultTranscript
	h.analyzer.Default = analyzer.Transcript{Text: d.Text, ExitCode: d.ExitCode, TimedOut: d.TimedOut}
	for id, tr := range scenario.Transcripts {
		h.analyzer.Transcripts[id] = analyzer.Transcript{Text: tr.Text, ExitCode: tr.ExitCode, TimedOut: tr.TimedOut}
	}

	seeds := cooldown.Records{}
	for _, item := range scenario.Items {
		rec := h.record(item)
		stage := item.Stage
		if stage == "" {
			stage = h.job.Stages[0]
		}
		h.items.AddToStage(stage, rec.Candidate)
		h.items.SetRecord(rec)

		if item.LastAuditAgo != nil {
			seeds[item.ID] = h.clock.Ago(*item.LastAuditAgo)
		}
	}

	if len(seeds) > 0 {
		if err := h.store.Put(ctx, h.job.ID, seeds); err != nil {
			return fmt.Errorf("seed cooldowns: %w", err)
		}
	}

	h.logger.Info("scenario loaded",
		"items", len(scenario.Items),
		"seeded_cooldowns", len(seeds),
	)
	return nil
}

func (h *Harness) record(it ItemSpec) workitem.Record {
	status := it.Status
	if status == "" {
		status = "open"
	}
	c := workitem.Candidate{
		ID:     it.ID,
		Title:  it.Title,
		Status: status,
		Stage:  it.Stage,
	}
	if c.Stage == "" {
		c.Stage = h.job.Stages[0]
	}
	if it.UpdatedAgo != nil {
		t := h.clock.Ago(*it.UpdatedAgo)
		c.UpdatedAt = &t
	}

	rec := workitem.Record{Candidate: c}
	for _, child := range it.Children {
		rec.Children = append(rec.Children, workitem.Child{ID: child.ID, Status: child.Status})
	}
	for _, comment := range it.Comments {
		at := h.clock.Ago(comment.Ago)
		rec.Comments = append(rec.Comments, workitem.Comment{Body: comment.Body, CreatedAt: &at})
	}
	return rec
}

// executeFlow runs one engine cycle per step and validates expect clauses
// against what the engine actually produced.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		if step.Advance > 0 {
			h.clock.Advance(step.Advance)
		}

		eng, err := engine.New(h.items, h.analyzer, h.store, h.job,
			engine.WithLogger(h.logger),
			engine.WithClock(h.clock),
			engine.WithRunIDs(h.runIDs),
			engine.WithLedger(h.store),
			engine.WithCodeHost(h.host),
			engine.WithArtifacts(h.artifacts),
			engine.WithNotifier(h.notifier),
			engine.WithDryRun(step.DryRun),
		)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		res, err := eng.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		ev := newTraceEvent(i+1, res)
		result.AddCycle(ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step.Expect, ev) {
				result.AddError(msg)
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"run_id", ev.RunID,
			"outcome", ev.Outcome,
			"item_id", ev.Item,
		)
	}

	return nil
}

func checkExpect(step int, want *ExpectClause, got TraceEvent) []string {
	var errs []string
	if got.Outcome != want.Outcome {
		errs = append(errs, fmt.Sprintf("flow[%d]: expected outcome %q, got %q", step, want.Outcome, got.Outcome))
	}
	if want.Item != "" && got.Item != want.Item {
		errs = append(errs, fmt.Sprintf("flow[%d]: expected item %q, got %q", step, want.Item, got.Item))
	}
	if want.Completed != nil && got.Completed != *want.Completed {
		errs = append(errs, fmt.Sprintf("flow[%d]: expected completed=%t, got %t", step, *want.Completed, got.Completed))
	}
	return errs
}
