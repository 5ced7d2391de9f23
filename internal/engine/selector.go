package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// listAttempts is the initial listing call plus one retry.
const listAttempts = 2

// Selection is the outcome of one selector pass.
type Selection struct {
	// Candidate is the item to audit, or nil for no candidates.
	Candidate *workitem.Candidate

	// Eligible lists every eligible item in selection order.
	Eligible []workitem.Candidate

	// LastAudit holds the effective last-audit time of each listed item
	// that has one.
	LastAudit map[string]time.Time

	// Failures are the recoverable errors met while selecting.
	Failures []*StepError
}

// Selector picks at most one work item to audit.
//
// INVARIANTS:
//   - An item whose effective last audit is less than its cooldown ago is
//     never selected.
//   - The effective last audit is the later of the persisted cooldown
//     record and the newest marked comment; it never moves backwards.
//   - Eligible items with no updatedAt sort before items with one; known
//     timestamps sort oldest first; remaining ties keep listing order.
type Selector struct {
	items     workitem.Store
	cooldowns cooldown.StateStore
	job       Job
	clock     Clock
	logger    *slog.Logger
}

// NewSelector creates a selector. All collaborators are required.
func NewSelector(items workitem.Store, cooldowns cooldown.StateStore, job Job, clock Clock, logger *slog.Logger) *Selector {
	return &Selector{
		items:     items,
		cooldowns: cooldowns,
		job:       job.withDefaults(),
		clock:     clock,
		logger:    logger,
	}
}

// Select lists the job's stages and returns the next item to audit.
// It never returns an error; failures degrade to fewer (or no) candidates.
func (s *Selector) Select(ctx context.Context) Selection {
	var sel Selection

	candidates := s.list(ctx, &sel)
	if len(candidates) == 0 {
		s.logger.InfoContext(ctx, "no audit candidates", "stages", s.job.Stages)
		return sel
	}

	records, err := s.cooldowns.Get(ctx, s.job.ID)
	if err != nil {
		sel.Failures = append(sel.Failures, newStepError(FailurePersistence, "read cooldowns", "", err))
		s.logger.WarnContext(ctx, "cooldown state unreadable; relying on comment markers", "error", err)
		records = cooldown.Records{}
	}

	now := s.clock.Now()
	sel.LastAudit = make(map[string]time.Time)
	for _, c := range candidates {
		last, known := s.effectiveLastAudit(ctx, c, records, now, &sel)
		if known {
			sel.LastAudit[c.ID] = last
		}
		cd := s.job.CooldownFor(c.Status)
		if known && now.Sub(last) < cd {
			s.logger.DebugContext(ctx, "candidate in cooldown",
				"item_id", c.ID, "last_audit", last, "cooldown", cd)
			continue
		}
		sel.Eligible = append(sel.Eligible, c)
	}

	sortCandidates(sel.Eligible)
	if len(sel.Eligible) == 0 {
		s.logger.InfoContext(ctx, "all candidates in cooldown", "listed", len(candidates))
		return sel
	}

	chosen := sel.Eligible[0]
	sel.Candidate = &chosen
	s.logger.InfoContext(ctx, "selected audit candidate",
		"item_id", chosen.ID, "eligible", len(sel.Eligible), "listed", len(candidates))
	return sel
}

// list queries every stage, retrying each once, and deduplicates by id.
// Duplicates keep the position of their first sighting and the fields of
// their last.
func (s *Selector) list(ctx context.Context, sel *Selection) []workitem.Candidate {
	var order []string
	byID := make(map[string]workitem.Candidate)

	for _, stage := range s.job.Stages {
		items, err := s.listStage(ctx, stage)
		if err != nil {
			sel.Failures = append(sel.Failures, newStepError(FailureQuery, "list "+stage, "", err))
			s.logger.WarnContext(ctx, "stage listing failed after retry", "stage", stage, "error", err)
			continue
		}
		for _, it := range items {
			if it.ID == "" {
				continue
			}
			if _, seen := byID[it.ID]; !seen {
				order = append(order, it.ID)
			}
			byID[it.ID] = it
		}
	}

	out := make([]workitem.Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func (s *Selector) listStage(ctx context.Context, stage string) ([]workitem.Candidate, error) {
	var err error
	for attempt := 1; attempt <= listAttempts; attempt++ {
		var items []workitem.Candidate
		items, err = s.items.ListByStage(ctx, stage)
		if err == nil {
			return items, nil
		}
		s.logger.DebugContext(ctx, "stage listing failed", "stage", stage, "attempt", attempt, "error", err)
	}
	return nil, err
}

// effectiveLastAudit returns the later of the persisted record and the
// newest marked comment. Comments are only fetched when the persisted
// record alone would leave the item eligible, since they can only make the
// effective time later.
func (s *Selector) effectiveLastAudit(ctx context.Context, c workitem.Candidate, records cooldown.Records, now time.Time, sel *Selection) (time.Time, bool) {
	last, known := records.Last(c.ID)
	if known && now.Sub(last) < s.job.CooldownFor(c.Status) {
		return last, true
	}

	rec, err := s.items.Show(ctx, c.ID)
	if err != nil {
		sel.Failures = append(sel.Failures, newStepError(FailureQuery, "show", c.ID, err))
		s.logger.WarnContext(ctx, "could not read comments; using persisted cooldown only",
			"item_id", c.ID, "error", err)
		return last, known
	}
	if marked := rec.LatestMarkedComment(s.job.CommentHeading); marked != nil {
		if !known || marked.After(last) {
			return *marked, true
		}
	}
	return last, known
}

// sortCandidates orders eligible items: unknown updatedAt first, then
// oldest updatedAt first. The sort is stable so listing order breaks ties.
func sortCandidates(items []workitem.Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].UpdatedAt, items[j].UpdatedAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}
