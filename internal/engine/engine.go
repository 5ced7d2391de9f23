package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/artifact"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/metrics"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// TracerName identifies spans emitted by the engine.
const TracerName = "github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"

// Span attribute keys.
const (
	AttrJobID    = attribute.Key("ampa.job.id")
	AttrRunID    = attribute.Key("ampa.run.id")
	AttrItemID   = attribute.Key("ampa.item.id")
	AttrOutcome  = attribute.Key("ampa.outcome")
	AttrExitCode = attribute.Key("ampa.audit.exit_code")
	AttrSource   = attribute.Key("ampa.report.source")
)

var errNoMarkers = errors.New("no usable report between markers; using raw transcript")

// Ledger records one row per cycle.
type Ledger interface {
	WriteRun(ctx context.Context, run store.Run) (int64, error)
}

// Engine runs audit cycles for one job.
//
// A cycle is strictly sequential: select, invoke, extract, publish,
// evaluate. At most one item is audited per cycle. The engine holds no
// state between cycles beyond what its collaborators persist; running two
// cycles of the same job concurrently is the caller's mistake.
type Engine struct {
	items     workitem.Store
	analyzer  analyzer.Analyzer
	cooldowns cooldown.StateStore
	job       Job

	clock     Clock
	runIDs    RunIDGenerator
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	ledger    Ledger
	notifier  notify.Notifier
	artifacts artifact.Store
	host      codehost.CodeHost
	dryRun    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock. The default is SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRunIDs sets the run id generator. The default is UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLedger appends every cycle to l.
func WithLedger(l Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithNotifier sends audit and completion notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithArtifacts stores transcripts too long for a comment.
func WithArtifacts(s artifact.Store) Option {
	return func(e *Engine) { e.artifacts = s }
}

// WithCodeHost verifies PR merge state.
func WithCodeHost(h codehost.CodeHost) Option {
	return func(e *Engine) { e.host = h }
}

// WithDryRun stops every cycle after selection.
func WithDryRun(dry bool) Option {
	return func(e *Engine) { e.dryRun = dry }
}

// New creates an engine for job. items, an, and cooldowns are required.
func New(items workitem.Store, an analyzer.Analyzer, cooldowns cooldown.StateStore, job Job, opts ...Option) (*Engine, error) {
	switch {
	case items == nil:
		return nil, fmt.Errorf("%w: work item store", ErrMissingCollaborator)
	case an == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingCollaborator)
	case cooldowns == nil:
		return nil, fmt.Errorf("%w: cooldown store", ErrMissingCollaborator)
	}

	e := &Engine{
		items:     items,
		analyzer:  an,
		cooldowns: cooldowns,
		job:       job.withDefaults(),
		clock:     SystemClock{},
		runIDs:    UUIDv7Generator{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(TracerName)
	}
	return e, nil
}

// Job returns the job the engine runs, with defaults applied.
func (e *Engine) Job() Job {
	return e.job
}

// RunCycle selects at most one item, audits it, and publishes the result.
//
// Step failures are collected on the result, never returned. The error is
// non-nil only when ctx is done before the cycle could finish; the partial
// result is still returned and recorded.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{
		RunID:     e.runIDs.Generate(),
		JobID:     e.job.ID,
		StartedAt: e.clock.Now(),
	}
	log := e.logger.With("job_id", res.JobID, "run_id", res.RunID)

	ctx, span := e.tracer.Start(ctx, "ampa.cycle",
		trace.WithAttributes(AttrJobID.String(res.JobID), AttrRunID.String(res.RunID)))
	defer span.End()

	err := e.cycle(ctx, log, &res)
	res.FinishedAt = e.clock.Now()

	span.SetAttributes(AttrOutcome.String(string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.record(ctx, log, res)
	return res, err
}

func (e *Engine) cycle(ctx context.Context, log *slog.Logger, res *CycleResult) error {
	sel := e.selectCandidate(ctx, log)
	res.Failures = append(res.Failures, sel.Failures...)
	res.Eligible = len(sel.Eligible)
	e.metrics.SetEligible(e.job.ID, res.Eligible)

	if sel.Candidate == nil {
		res.Outcome = OutcomeNoCandidates
		return ctx.Err()
	}
	item := *sel.Candidate
	res.Candidate = &item
	res.Outcome = OutcomeSelected
	log = log.With("item_id", item.ID)

	if e.dryRun {
		log.InfoContext(ctx, "dry run; skipping audit")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tr := e.invoke(ctx, log, item)
	res.ExitCode = tr.ExitCode
	res.TimedOut = tr.TimedOut
	if tr.Succeeded() {
		res.Outcome = OutcomeAudited
	} else {
		res.Outcome = OutcomeAuditFailed
		res.Failures = append(res.Failures, newStepError(FailureInvocation, "invoke", item.ID,
			fmt.Errorf("exit code %d (timed out: %t)", tr.ExitCode, tr.TimedOut)))
	}

	ext := report.NewExtractor(log).Extract(tr.Text)
	res.Report = ext.Report
	res.ReportSource = ext.Source
	if ext.FellBack() && tr.Text != "" {
		res.Failures = append(res.Failures, newStepError(FailureParse, "extract", item.ID,
			errNoMarkers))
	}

	pub, failures := e.publish(ctx, log, item, tr, ext)
	res.Failures = append(res.Failures, failures...)
	res.Summary = pub.Summary
	res.CommentPosted = pub.CommentPosted
	res.ArtifactRef = pub.ArtifactRef
	res.CooldownUpdated = pub.CooldownUpdated

	if !tr.Succeeded() {
		log.InfoContext(ctx, "audit did not succeed; skipping completion check")
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.complete(ctx, log, item, tr, res)
	return ctx.Err()
}

func (e *Engine) selectCandidate(ctx context.Context, log *slog.Logger) Selection {
	ctx, span := e.tracer.Start(ctx, "ampa.select")
	defer span.End()

	sel := NewSelector(e.items, e.cooldowns, e.job, e.clock, log).Select(ctx)
	if sel.Candidate != nil {
		span.SetAttributes(AttrItemID.String(sel.Candidate.ID))
	}
	span.SetAttributes(attribute.Int("ampa.select.eligible", len(sel.Eligible)))
	return sel
}

func (e *Engine) invoke(ctx context.Context, log *slog.Logger, item workitem.Candidate) analyzer.Transcript {
	ctx, span := e.tracer.Start(ctx, "ampa.invoke", trace.WithAttributes(AttrItemID.String(item.ID)))
	defer span.End()

	log.InfoContext(ctx, "invoking audit")
	tr := e.analyzer.Invoke(ctx, item.ID)
	e.metrics.ObserveInvoke(e.job.ID, tr.Duration, tr.TimedOut)

	span.SetAttributes(AttrExitCode.Int(tr.ExitCode), attribute.Bool("ampa.audit.timed_out", tr.TimedOut))
	if !tr.Succeeded() {
		span.SetStatus(codes.Error, "audit failed")
		log.WarnContext(ctx, "audit invocation failed",
			"exit_code", tr.ExitCode, "timed_out", tr.TimedOut, "duration", tr.Duration)
	} else {
		log.InfoContext(ctx, "audit finished", "exit_code", tr.ExitCode, "duration", tr.Duration)
	}
	return tr
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, item workitem.Candidate, tr analyzer.Transcript, ext report.Extraction) (Publication, []*StepError) {
	ctx, span := e.tracer.Start(ctx, "ampa.publish",
		trace.WithAttributes(AttrItemID.String(item.ID), AttrSource.String(string(ext.Source))))
	defer span.End()

	p := NewPublisher(e.items, e.cooldowns, e.artifacts, e.notifier, e.job, e.clock, log)
	pub, failures := p.Publish(ctx, item, tr, ext)
	if len(failures) > 0 {
		span.SetStatus(codes.Error, failures[0].Error())
	}
	return pub, failures
}

func (e *Engine) complete(ctx context.Context, log *slog.Logger, item workitem.Candidate, tr analyzer.Transcript, res *CycleResult) {
	ctx, span := e.tracer.Start(ctx, "ampa.evaluate", trace.WithAttributes(AttrItemID.String(item.ID)))
	defer span.End()

	rec, err := e.items.Show(ctx, item.ID)
	if err != nil {
		res.Failures = append(res.Failures, newStepError(FailureQuery, "show", item.ID, err))
		log.WarnContext(ctx, "could not load item for completion check", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	decision, failures := NewEvaluator(e.host, e.job.VerifyPR, log).Evaluate(ctx, tr.Text, rec)
	res.Failures = append(res.Failures, failures...)
	res.Decision = &decision
	span.SetAttributes(attribute.Bool("ampa.complete", decision.ShouldComplete))
	if !decision.ShouldComplete {
		log.InfoContext(ctx, "item not ready to complete",
			"merged_pr", decision.MergedPR, "children_open", decision.ChildrenOpen, "ready_token", decision.ReadyToken)
		return
	}

	if err := e.items.UpdateStatus(ctx, item.ID, e.job.Completion); err != nil {
		res.Failures = append(res.Failures, newStepError(FailurePersistence, "update status", item.ID, err))
		log.ErrorContext(ctx, "failed to mark item complete", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	res.Completed = true
	res.Outcome = OutcomeCompleted
	e.metrics.IncrementCompletion(e.job.ID)
	log.InfoContext(ctx, "item completed",
		"status", e.job.Completion.Status, "stage", e.job.Completion.Stage, "evidence", string(decision.Evidence))

	if e.notifier != nil {
		if err := e.notifier.Send(ctx, CompletionMessage(item, decision, e.job.Completion)); err != nil {
			log.WarnContext(ctx, "completion notification failed", "error", err)
		}
	}
}

// record emits metrics and appends the ledger row. Ledger failures are
// only logged.
func (e *Engine) record(ctx context.Context, log *slog.Logger, res CycleResult) {
	e.metrics.IncrementOutcome(e.job.ID, string(res.Outcome))
	for _, f := range res.Failures {
		e.metrics.IncrementFailure(e.job.ID, string(f.Kind))
	}

	if e.ledger != nil {
		// The ledger row is written even when ctx was cancelled mid-cycle.
		if _, err := e.ledger.WriteRun(context.WithoutCancel(ctx), res.Run()); err != nil {
			log.ErrorContext(ctx, "failed to write run ledger", "error", err)
		}
	}

	log.InfoContext(ctx, "cycle finished",
		"outcome", string(res.Outcome),
		"failures", len(res.Failures),
		"duration", res.FinishedAt.Sub(res.StartedAt))
}
