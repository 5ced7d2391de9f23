// Package workitem defines the port to the external work-item tracker and a
// command-line adapter for it.
package workitem

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCommandFailed wraps any non-zero exit from the tracker CLI.
var ErrCommandFailed = errors.New("work item command failed")

// ErrNotFound is returned by Show when the tracker has no such item.
var ErrNotFound = errors.New("work item not found")

// Candidate is a work item as returned by a stage listing.
// UpdatedAt is nil when the tracker did not report one.
type Candidate struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Comment is one comment attached to a work item.
type Comment struct {
	ID        string     `json:"id,omitempty"`
	Author    string     `json:"author,omitempty"`
	Body      string     `json:"body"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Child is a sub-item of a work item.
type Child struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
}

// Record is the full view of one item: the candidate fields plus children
// and comments.
type Record struct {
	Candidate
	Children []Child   `json:"children,omitempty"`
	Comments []Comment `json:"comments,omitempty"`
}

// StatusUpdate describes a status/stage transition. Flags are passed through
// to the tracker as additional named options.
type StatusUpdate struct {
	Status string
	Stage  string
	Flags  map[string]string
}

// Store is the tracker surface the audit engine depends on.
type Store interface {
	ListByStage(ctx context.Context, stage string) ([]Candidate, error)
	Show(ctx context.Context, id string) (Record, error)
	AddComment(ctx context.Context, id, text string) error
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
}

var closedStatuses = map[string]bool{
	"closed":    true,
	"done":      true,
	"completed": true,
	"resolved":  true,
}

// IsClosedStatus reports whether status counts as resolved for the purpose of
// blocking a parent's completion.
func IsClosedStatus(status string) bool {
	return closedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the ISO-8601 shapes the tracker emits. Timestamps
// without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// LatestMarkedComment returns the newest creation time among comments whose
// body contains marker, or nil when none carry a parseable timestamp.
func (r Record) LatestMarkedComment(marker string) *time.Time {
	var latest *time.Time
	for _, c := range r.Comments {
		if c.CreatedAt == nil || !strings.Contains(c.Body, marker) {
			continue
		}
		if latest == nil || c.CreatedAt.After(*latest) {
			t := *c.CreatedAt
			latest = &t
		}
	}
	return latest
}
