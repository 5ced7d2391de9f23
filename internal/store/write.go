package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
)

// ErrEmptyRunID is returned by WriteRun when the run has no id.
var ErrEmptyRunID = errors.New("run id is empty")

// Put replaces every cooldown row for jobID with records in one transaction.
func (s *Store) Put(ctx context.Context, jobID string, records cooldown.Records) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put cooldowns: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM cooldowns WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("put cooldowns: clear: %w", err)
	}

	for id, t := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cooldowns (job_id, item_id, last_audit_at)
			VALUES (?, ?, ?)
		`, jobID, id, formatTime(t))
		if err != nil {
			return fmt.Errorf("put cooldowns: insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put cooldowns: commit: %w", err)
	}
	return nil
}

// WriteRun appends a run to the ledger and returns its assigned seq.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - rewriting the same run
// id returns the existing seq.
func (s *Store) WriteRun(ctx context.Context, run Run) (int64, error) {
	if run.ID == "" {
		return 0, fmt.Errorf("write run: %w", ErrEmptyRunID)
	}
	failuresJSON, err := marshalFailures(run.Failures)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_runs
		(id, job_id, item_id, outcome, exit_code, timed_out, report_source, comment_posted,
		 artifact_ref, completed, failures, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.JobID,
		run.ItemID,
		run.Outcome,
		run.ExitCode,
		boolToInt(run.TimedOut),
		run.ReportSource,
		boolToInt(run.CommentPosted),
		run.ArtifactRef,
		boolToInt(run.Completed),
		failuresJSON,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM audit_runs WHERE id = ?`, run.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write run: read seq: %w", err)
	}
	return seq, nil
}
