package engine

import (
	"time"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// Outcome is the furthest point a cycle reached.
type Outcome string

const (
	// OutcomeNoCandidates means nothing was eligible; nothing was invoked.
	OutcomeNoCandidates Outcome = "no_candidates"

	// OutcomeSelected means a candidate was chosen but not audited (dry run).
	OutcomeSelected Outcome = "selected"

	// OutcomeAudited means the audit ran cleanly and results were published.
	OutcomeAudited Outcome = "audited"

	// OutcomeAuditFailed means the audit timed out, failed to start, or
	// exited non-zero. Results were still published.
	OutcomeAuditFailed Outcome = "audit_failed"

	// OutcomeCompleted means the item was audited and closed out.
	OutcomeCompleted Outcome = "completed"
)

// CycleResult describes everything one cycle did.
type CycleResult struct {
	RunID     string              `json:"run_id"`
	JobID     string              `json:"job_id"`
	Outcome   Outcome             `json:"outcome"`
	Candidate *workitem.Candidate `json:"candidate,omitempty"`
	Eligible  int                 `json:"eligible"`

	ExitCode     int           `json:"exit_code"`
	TimedOut     bool          `json:"timed_out"`
	Report       string        `json:"report,omitempty"`
	ReportSource report.Source `json:"report_source,omitempty"`
	Summary      string        `json:"summary,omitempty"`

	CommentPosted   bool   `json:"comment_posted"`
	ArtifactRef     string `json:"artifact_ref,omitempty"`
	CooldownUpdated bool   `json:"cooldown_updated"`

	Decision  *CompletionDecision `json:"decision,omitempty"`
	Completed bool                `json:"completed"`

	Failures []*StepError `json:"-"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FailureMessages renders Failures as strings.
func (r CycleResult) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}

// HasFailure reports whether any failure of kind was recorded.
func (r CycleResult) HasFailure(kind FailureKind) bool {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Run converts the result into a ledger row.
func (r CycleResult) Run() store.Run {
	run := store.Run{
		ID:            r.RunID,
		JobID:         r.JobID,
		Outcome:       string(r.Outcome),
		ExitCode:      r.ExitCode,
		TimedOut:      r.TimedOut,
		ReportSource:  string(r.ReportSource),
		CommentPosted: r.CommentPosted,
		ArtifactRef:   r.ArtifactRef,
		Completed:     r.Completed,
		Failures:      r.FailureMessages(),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.Candidate != nil {
		run.ItemID = r.Candidate.ID
	}
	return run
}
