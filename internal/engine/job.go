package engine

import (
	"strings"
	"time"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// Default job settings.
const (
	DefaultCooldown         = 6 * time.Hour
	DefaultCommentThreshold = 65536
	DefaultCommentHeading   = "# AMPA Audit Result"
)

// Job describes one audit job: which items it considers and how it
// publishes results.
type Job struct {
	// ID namespaces cooldown state and ledger rows.
	ID string

	// Stages are listed in order; items seen in several stages are
	// deduplicated by id.
	Stages []string

	// Cooldown is the minimum time between audits of one item.
	Cooldown time.Duration

	// CooldownByStatus overrides Cooldown for items in a given status.
	// Keys match case-insensitively.
	CooldownByStatus map[string]time.Duration

	// VerifyPR asks the code host for merge state. When false, a parseable
	// PR reference alone counts as merged.
	VerifyPR bool

	// CommentThreshold is the transcript length, in characters, at which the
	// full transcript goes to an artifact instead of an inline comment.
	CommentThreshold int

	// CommentHeading starts every audit comment and marks it when scanning
	// comments for previous audits.
	CommentHeading string

	// Completion is applied to items judged complete.
	Completion workitem.StatusUpdate
}

// withDefaults fills zero-valued publishing settings. A zero Cooldown is
// kept: it means every item is always eligible.
func (j Job) withDefaults() Job {
	if j.CommentThreshold <= 0 {
		j.CommentThreshold = DefaultCommentThreshold
	}
	if j.CommentHeading == "" {
		j.CommentHeading = DefaultCommentHeading
	}
	return j
}

// CooldownFor returns the cooldown for an item in status.
func (j Job) CooldownFor(status string) time.Duration {
	key := strings.ToLower(strings.TrimSpace(status))
	for s, d := range j.CooldownByStatus {
		if strings.ToLower(strings.TrimSpace(s)) == key {
			return d
		}
	}
	return j.Cooldown
}
