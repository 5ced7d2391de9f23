package store

import "time"

// Run is one ledger entry describing a single audit cycle.
type Run struct {
	// Seq is assigned by the database on insert; ignored by WriteRun.
	Seq           int64     `json:"seq"`
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	ItemID        string    `json:"item_id,omitempty"`
	Outcome       string    `json:"outcome"`
	ExitCode      int       `json:"exit_code"`
	TimedOut      bool      `json:"timed_out"`
	ReportSource  string    `json:"report_source,omitempty"`
	CommentPosted bool      `json:"comment_posted"`
	ArtifactRef   string    `json:"artifact_ref,omitempty"`
	Completed     bool      `json:"completed"`
	Failures      []string  `json:"failures"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is the wall time of the cycle.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
