package harness

import "github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"

// TraceEvent is the observable summary of one cycle.
type TraceEvent struct {
	Cycle           int      `json:"cycle"`
	RunID           string   `json:"run_id"`
	Outcome         string   `json:"outcome"`
	Item            string   `json:"item,omitempty"`
	Eligible        int      `json:"eligible"`
	ExitCode        int      `json:"exit_code"`
	TimedOut        bool     `json:"timed_out"`
	ReportSource    string   `json:"report_source,omitempty"`
	CommentPosted   bool     `json:"comment_posted"`
	ArtifactRef     string   `json:"artifact_ref,omitempty"`
	CooldownUpdated bool     `json:"cooldown_updated"`
	Completed       bool     `json:"completed"`
	Failures        []string `json:"failures,omitempty"`
}

// newTraceEvent summarises a cycle result.
func newTraceEvent(cycle int, res engine.CycleResult) TraceEvent {
	ev := TraceEvent{
		Cycle:           cycle,
		RunID:           res.RunID,
		Outcome:         string(res.Outcome),
		Eligible:        res.Eligible,
		ExitCode:        res.ExitCode,
		TimedOut:        res.TimedOut,
		ReportSource:    string(res.ReportSource),
		CommentPosted:   res.CommentPosted,
		ArtifactRef:     res.ArtifactRef,
		CooldownUpdated: res.CooldownUpdated,
		Completed:       res.Completed,
	}
	if res.Candidate != nil {
		ev.Item = res.Candidate.ID
	}
	if len(res.Failures) > 0 {
		ev.Failures = res.FailureMessages()
	}
	return ev
}

// fields exposes the event to where-clause matching.
func (e TraceEvent) fields() map[string]interface{} {
	return map[string]interface{}{
		"cycle":            e.Cycle,
		"run_id":           e.RunID,
		"outcome":          e.Outcome,
		"item":             e.Item,
		"eligible":         e.Eligible,
		"exit_code":        e.ExitCode,
		"timed_out":        e.TimedOut,
		"report_source":    e.ReportSource,
		"comment_posted":   e.CommentPosted,
		"artifact_ref":     e.ArtifactRef,
		"cooldown_updated": e.CooldownUpdated,
		"completed":        e.Completed,
		"failures":         len(e.Failures),
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per cycle, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCycle appends a cycle to the trace.
func (r *Result) AddCycle(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
