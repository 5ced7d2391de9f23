package engine

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

var (
	mergedKeywords = regexp.MustCompile(`pr merged|merged pr|pull request merged`)
	readyPhrases   = regexp.MustCompile(`ready to close|can be closed|ready for final|ready for sign-off`)
)

// MergeEvidence records how MergedPR was decided.
type MergeEvidence string

const (
	EvidenceNone     MergeEvidence = "none"
	EvidenceCodeHost MergeEvidence = "codehost"
	EvidenceRefOnly  MergeEvidence = "reference"
	EvidenceKeyword  MergeEvidence = "keyword"
)

// CompletionDecision is the evaluator's verdict for one audited item.
type CompletionDecision struct {
	MergedPR       bool             `json:"merged_pr"`
	ChildrenOpen   bool             `json:"children_open"`
	ReadyToken     bool             `json:"ready_token"`
	ShouldComplete bool             `json:"should_complete"`
	PR             *codehost.PRRef  `json:"pr,omitempty"`
	Evidence       MergeEvidence    `json:"evidence"`
	OpenChildren   []workitem.Child `json:"open_children,omitempty"`
}

// Evaluator decides whether an audited item is ready to be closed out.
//
// shouldComplete = mergedPR AND (NOT childrenOpen OR readyToken)
type Evaluator struct {
	host     codehost.CodeHost
	verifyPR bool
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. host may be nil, in which case a PR
// reference is never confirmed merged while verifyPR is on.
func NewEvaluator(host codehost.CodeHost, verifyPR bool, logger *slog.Logger) *Evaluator {
	return &Evaluator{host: host, verifyPR: verifyPR, logger: logger}
}

// Evaluate inspects transcript and the item's record. Code-host failures are
// returned as query step errors and count as "not merged".
func (ev *Evaluator) Evaluate(ctx context.Context, transcript string, rec workitem.Record) (CompletionDecision, []*StepError) {
	var failures []*StepError
	d := CompletionDecision{Evidence: EvidenceNone}
	text := normalize(transcript)

	if ref, err := codehost.ParseReference(transcript); err == nil {
		d.PR = &ref
		switch {
		case !ev.verifyPR:
			d.MergedPR = true
			d.Evidence = EvidenceRefOnly
		case ev.host == nil:
			ev.logger.WarnContext(ctx, "PR verification enabled but no code host configured",
				"item_id", rec.ID, "pr", ref.String())
		default:
			merged, err := ev.host.IsMerged(ctx, ref)
			if err != nil {
				failures = append(failures, newStepError(FailureQuery, "pr merged check", rec.ID, err))
				ev.logger.WarnContext(ctx, "code host query failed; treating PR as unmerged",
					"item_id", rec.ID, "pr", ref.String(), "error", err)
			} else if merged {
				d.MergedPR = true
				d.Evidence = EvidenceCodeHost
			}
		}
	} else if errors.Is(err, codehost.ErrNoReference) && mergedKeywords.MatchString(text) {
		d.MergedPR = true
		d.Evidence = EvidenceKeyword
	}

	for _, child := range rec.Children {
		if !workitem.IsClosedStatus(child.Status) {
			d.OpenChildren = append(d.OpenChildren, child)
		}
	}
	d.ChildrenOpen = len(d.OpenChildren) > 0
	d.ReadyToken = readyPhrases.MatchString(text)
	d.ShouldComplete = d.MergedPR && (!d.ChildrenOpen || d.ReadyToken)

	ev.logger.DebugContext(ctx, "completion decision",
		"item_id", rec.ID,
		"merged_pr", d.MergedPR,
		"evidence", string(d.Evidence),
		"children_open", d.ChildrenOpen,
		"ready_token", d.ReadyToken,
		"should_complete", d.ShouldComplete)
	return d, failures
}

// normalize folds compatibility forms and case so phrase matching is
// insensitive to typography like fullwidth letters.
func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
