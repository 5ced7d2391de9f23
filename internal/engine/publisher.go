package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/artifact"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// errNoArtifactStore is recorded when an oversized transcript has nowhere to go.
var errNoArtifactStore = errors.New("no artifact store configured")

// truncationReserve keeps room for the truncation note under the threshold.
const truncationReserve = 256

// Publication describes what the publisher managed to persist.
type Publication struct {
	CommentPosted   bool
	ArtifactRef     string
	Truncated       bool
	CooldownUpdated bool
	Summary         string
}

// Publisher writes audit results back: a comment on the item, the cooldown
// record, and a notification.
//
// The cooldown record is advanced whenever an audit was attempted, even if
// the comment could not be posted.
type Publisher struct {
	items     workitem.Store
	cooldowns cooldown.StateStore
	artifacts artifact.Store
	notifier  notify.Notifier
	job       Job
	clock     Clock
	logger    *slog.Logger
}

// NewPublisher creates a publisher. artifacts and notifier may be nil.
func NewPublisher(items workitem.Store, cooldowns cooldown.StateStore, artifacts artifact.Store, notifier notify.Notifier, job Job, clock Clock, logger *slog.Logger) *Publisher {
	return &Publisher{
		items:     items,
		cooldowns: cooldowns,
		artifacts: artifacts,
		notifier:  notifier,
		job:       job.withDefaults(),
		clock:     clock,
		logger:    logger,
	}
}

// Publish posts the report, advances the cooldown, and sends the audit
// notification.
func (p *Publisher) Publish(ctx context.Context, item workitem.Candidate, tr analyzer.Transcript, ext report.Extraction) (Publication, []*StepError) {
	var pub Publication
	var failures []*StepError
	log := p.logger.With("item_id", item.ID)

	if body, ok := p.commentBody(ctx, item, tr, ext, &pub, &failures); ok {
		if err := p.items.AddComment(ctx, item.ID, body); err != nil {
			failures = append(failures, newStepError(FailurePersistence, "comment", item.ID, err))
			log.WarnContext(ctx, "failed to post audit comment", "error", err)
		} else {
			pub.CommentPosted = true
			log.InfoContext(ctx, "posted audit comment",
				"chars", utf8.RuneCountInString(body), "artifact", pub.ArtifactRef)
		}
	} else {
		log.WarnContext(ctx, "audit produced no output; skipping comment")
	}

	if err := cooldown.Touch(ctx, p.cooldowns, p.job.ID, item.ID, p.clock.Now()); err != nil {
		failures = append(failures, newStepError(FailurePersistence, "write cooldown", item.ID, err))
		log.ErrorContext(ctx, "failed to advance cooldown", "error", err)
	} else {
		pub.CooldownUpdated = true
	}

	pub.Summary = report.Summary(ext.Report)
	if pub.Summary == "" {
		pub.Summary = FallbackSummary(item, tr.ExitCode)
	}
	p.send(ctx, AuditMessage(item, tr, ext, pub))
	return pub, failures
}

// commentBody renders the comment for tr. ok is false when there is nothing
// to post.
func (p *Publisher) commentBody(ctx context.Context, item workitem.Candidate, tr analyzer.Transcript, ext report.Extraction, pub *Publication, failures *[]*StepError) (string, bool) {
	if strings.TrimSpace(tr.Text) == "" {
		return "", false
	}

	length := utf8.RuneCountInString(tr.Text)
	if length < p.job.CommentThreshold {
		return RenderComment(p.job.CommentHeading, ext.Report), true
	}

	summary := report.Summary(ext.Report)
	err := errNoArtifactStore
	if p.artifacts != nil {
		var ref string
		ref, err = p.artifacts.Store(ctx, item.ID, []byte(tr.Text))
		if err == nil {
			pub.ArtifactRef = ref
			return RenderArtifactComment(p.job.CommentHeading, ref, length, summary), true
		}
	}

	*failures = append(*failures, newStepError(FailurePersistence, "store artifact", item.ID, err))
	p.logger.WarnContext(ctx, "could not store full transcript; posting truncated report",
		"item_id", item.ID, "chars", length, "error", err)
	pub.Truncated = true
	return RenderTruncatedComment(p.job.CommentHeading, ext.Report, p.job.CommentThreshold), true
}

func (p *Publisher) send(ctx context.Context, msg notify.Message) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Send(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "notification failed", "title", msg.Title, "error", err)
	}
}

// RenderComment is the inline comment: heading, blank line, report verbatim.
func RenderComment(heading, reportText string) string {
	return heading + "\n\n" + reportText
}

// RenderArtifactComment points at a stored transcript.
func RenderArtifactComment(heading, ref string, length int, summary string) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "The full audit transcript (%d characters) exceeded the comment limit and was saved to:\n\n%s\n", length, ref)
	if summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderTruncatedComment cuts the report so the comment stays under
// threshold characters, and says so.
func RenderTruncatedComment(heading, reportText string, threshold int) string {
	limit := threshold - utf8.RuneCountInString(heading) - truncationReserve
	if limit < 0 {
		limit = 0
	}
	total := utf8.RuneCountInString(reportText)
	shown := reportText
	if total > limit {
		shown = string([]rune(reportText)[:limit])
	}
	return fmt.Sprintf("%s\n\n%s\n\n_Truncated: the full transcript could not be stored; showing %d of %d characters._",
		heading, shown, utf8.RuneCountInString(shown), total)
}

// FallbackSummary is used when the report has no Summary section.
func FallbackSummary(item workitem.Candidate, exitCode int) string {
	return fmt.Sprintf("%s — %s | exit=%d", item.ID, item.Title, exitCode)
}

// AuditMessage builds the notification sent after every audit attempt.
func AuditMessage(item workitem.Candidate, tr analyzer.Transcript, ext report.Extraction, pub Publication) notify.Message {
	fields := []notify.Field{
		{Name: "Summary", Value: pub.Summary},
		{Name: "Item", Value: item.ID + " " + item.Title},
		{Name: "Exit", Value: strconv.Itoa(tr.ExitCode)},
		{Name: "Report", Value: string(ext.Source)},
	}
	if tr.TimedOut {
		fields = append(fields, notify.Field{Name: "Timed out", Value: "true"})
	}
	if pub.ArtifactRef != "" {
		fields = append(fields, notify.Field{Name: "Artifact", Value: pub.ArtifactRef})
	}
	return notify.Message{Title: "Audit: " + item.ID, Fields: fields}
}

// CompletionMessage builds the notification sent when an item is closed out.
func CompletionMessage(item workitem.Candidate, d CompletionDecision, update workitem.StatusUpdate) notify.Message {
	fields := []notify.Field{
		{Name: "Item", Value: item.ID + " " + item.Title},
		{Name: "Status", Value: update.Status},
		{Name: "Stage", Value: update.Stage},
		{Name: "Evidence", Value: string(d.Evidence)},
	}
	if d.PR != nil {
		fields = append(fields, notify.Field{Name: "PR", Value: d.PR.String()})
	}
	return notify.Message{Title: "Completed: " + item.ID, Fields: fields}
}
