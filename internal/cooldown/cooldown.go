// Package cooldown persists, per audit job, the last time each work item was
// audited.
package cooldown

import (
	"context"
	"errors"
	"time"
)

// ErrCorruptState is returned when persisted state cannot be decoded.
var ErrCorruptState = errors.New("cooldown state is corrupt")

// Records maps item id to last audit time for one job.
type Records map[string]time.Time

// Clone returns an independent copy.
func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Last returns the recorded audit time for id.
func (r Records) Last(id string) (time.Time, bool) {
	t, ok := r[id]
	return t, ok
}

// StateStore reads and replaces the record map of a job. Writes are
// last-writer-wins; a single scheduler runs one cycle at a time.
type StateStore interface {
	Get(ctx context.Context, jobID string) (Records, error)
	Put(ctx context.Context, jobID string, records Records) error
}

// Touch loads the job's records, sets id to at, and writes them back.
// Existing entries for other items are preserved.
func Touch(ctx context.Context, s StateStore, jobID, id string, at time.Time) error {
	records, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if records == nil {
		records = Records{}
	}
	records[id] = at.UTC()
	return s.Put(ctx, jobID, records)
}

// Forget removes id from the job's records.
func Forget(ctx context.Context, s StateStore, jobID, id string) (bool, error) {
	records, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if _, ok := records[id]; !ok {
		return false, nil
	}
	delete(records, id)
	return true, s.Put(ctx, jobID, records)
}
