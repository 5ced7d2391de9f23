package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
)

// ErrRunNotFound is returned by ReadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Get returns the cooldown records for jobID. Returns an empty map (not nil)
// if the job has none.
func (s *Store) Get(ctx context.Context, jobID string) (cooldown.Records, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, last_audit_at
		FROM cooldowns
		WHERE job_id = ?
		ORDER BY item_id COLLATE BINARY ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query cooldowns: %w", err)
	}
	defer rows.Close()

	out := cooldown.Records{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		t, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cooldown.ErrCorruptState, err)
		}
		out[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cooldowns: %w", err)
	}
	return out, nil
}

// RunFilter narrows ReadRuns. Zero values match everything.
type RunFilter struct {
	JobID  string
	ItemID string
	// Limit caps the number of runs returned. Zero or less means no cap.
	Limit int
}

// ReadRuns returns ledger entries newest first.
// Results are ordered deterministically: ORDER BY seq DESC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	query := `
		SELECT seq, id, job_id, item_id, outcome, exit_code, timed_out, report_source, comment_posted,
		       artifact_ref, completed, failures, started_at, finished_at
		FROM audit_runs
		WHERE (? = '' OR job_id = ?) AND (? = '' OR item_id = ?)
		ORDER BY seq DESC, id COLLATE BINARY ASC`
	args := []any{f.JobID, f.JobID, f.ItemID, f.ItemID}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a single run by id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, job_id, item_id, outcome, exit_code, timed_out, report_source, comment_posted,
		       artifact_ref, completed, failures, started_at, finished_at
		FROM audit_runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var timedOut, commentPosted, completed int
	var failuresJSON, startedRaw, finishedRaw string
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.JobID,
		&run.ItemID,
		&run.Outcome,
		&run.ExitCode,
		&timedOut,
		&run.ReportSource,
		&commentPosted,
		&run.ArtifactRef,
		&completed,
		&failuresJSON,
		&startedRaw,
		&finishedRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.TimedOut = timedOut != 0
	run.CommentPosted = commentPosted != 0
	run.Completed = completed != 0

	if run.Failures, err = unmarshalFailures(failuresJSON); err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = parseTime(startedRaw); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = parseTime(finishedRaw); err != nil {
		return Run{}, err
	}
	return run, nil
}
