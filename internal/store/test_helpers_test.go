package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// createTestRun creates a test run with minimal required fields.
func createTestRun(id, jobID, itemID string, offset time.Duration) Run {
	return Run{
		ID:         id,
		JobID:      jobID,
		ItemID:     itemID,
		Outcome:    "audited",
		StartedAt:  testEpoch.Add(offset),
		FinishedAt: testEpoch.Add(offset + time.Minute),
	}
}
