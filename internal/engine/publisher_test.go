package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/testutil"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

const sampleReport = "## Summary\n\nAll acceptance criteria met.\n\n## Findings\n\n- none"

type publisherFixture struct {
	items     *testutil.Items
	cooldowns *testutil.Cooldowns
	artifacts *testutil.Artifacts
	notifier  *testutil.Notifier
	clock     *testutil.FixedClock
	job       Job
}

func newPublisherFixture() *publisherFixture {
	return &publisherFixture{
		items:     testutil.NewItems(),
		cooldowns: testutil.NewCooldowns(),
		artifacts: testutil.NewArtifacts(),
		notifier:  &testutil.Notifier{},
		clock:     testutil.NewFixedClock(testutil.Epoch),
		job:       testJob(),
	}
}

func (f *publisherFixture) publisher() *Publisher {
	return NewPublisher(f.items, f.cooldowns, f.artifacts, f.notifier, f.job, f.clock, discardLogger())
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

var testItem = workitem.Candidate{ID: "WL-7", Title: "Add export endpoint"}

func extraction(text string) report.Extraction {
	return report.NewExtractor(discardLogger()).Extract(text)
}

func delimited(body string) string {
	return "noise\n" + report.StartMarker + "\n" + body + "\n" + report.EndMarker + "\ntrailing"
}

func TestPublish_ShortTranscriptPostsReport(t *testing.T) {
	f := newPublisherFixture()
	text := delimited(sampleReport)
	tr := analyzer.Transcript{Text: text}

	pub, failures := f.publisher().Publish(context.Background(), testItem, tr, extraction(text))

	assert.Empty(t, failures)
	assert.True(t, pub.CommentPosted)
	assert.True(t, pub.CooldownUpdated)
	assert.Empty(t, pub.ArtifactRef)
	assert.Equal(t, "All acceptance criteria met.", pub.Summary)

	comments := f.items.Comments("WL-7")
	require.Len(t, comments, 1)
	assert.Equal(t, DefaultCommentHeading+"\n\n"+sampleReport, comments[0])

	last, ok := f.cooldowns.Last(testJobID, "WL-7")
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch, last)

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Audit: WL-7", msgs[0].Title)
	assert.Equal(t, "All acceptance criteria met.", msgs[0].Value("Summary"))
	assert.Equal(t, "0", msgs[0].Value("Exit"))
	assert.Equal(t, string(report.SourceDelimited), msgs[0].Value("Report"))
}

func TestPublish_LongTranscriptGoesToArtifact(t *testing.T) {
	f := newPublisherFixture()
	f.job.CommentThreshold = 100
	text := delimited(sampleReport) + "\n" + strings.Repeat("log line\n", 20)
	tr := analyzer.Transcript{Text: text}

	pub, failures := f.publisher().Publish(context.Background(), testItem, tr, extraction(text))

	assert.Empty(t, failures)
	require.NotEmpty(t, pub.ArtifactRef)
	stored, ok := f.artifacts.Object(pub.ArtifactRef)
	require.True(t, ok)
	assert.Equal(t, text, string(stored))

	comments := f.items.Comments("WL-7")
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], pub.ArtifactRef)
	assert.True(t, strings.HasPrefix(comments[0], DefaultCommentHeading+"\n\n"))
	assert.Equal(t, pub.ArtifactRef, f.notifier.Messages()[0].Value("Artifact"))
}

func TestPublish_ThresholdCountsCharactersNotBytes(t *testing.T) {
	f := newPublisherFixture()
	text := strings.Repeat("é", 60)
	require.Greater(t, len(text), 100)
	f.job.CommentThreshold = 100

	pub, _ := f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	assert.Empty(t, pub.ArtifactRef)
	assert.Equal(t, DefaultCommentHeading+"\n\n"+text, f.items.Comments("WL-7")[0])
}

func TestPublish_ArtifactFailurePostsTruncatedReport(t *testing.T) {
	f := newPublisherFixture()
	f.job.CommentThreshold = 300
	f.artifacts.Err = errors.New("bucket unavailable")
	body := strings.Repeat("x", 400)
	text := delimited(body)

	pub, failures := f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	require.Len(t, failures, 1)
	assert.True(t, IsPersistenceFailure(failures[0]))
	assert.True(t, pub.Truncated)
	assert.True(t, pub.CommentPosted)
	assert.True(t, pub.CooldownUpdated)

	comment := f.items.Comments("WL-7")[0]
	assert.Less(t, utf8.RuneCountInString(comment), f.job.CommentThreshold)
	assert.Contains(t, comment, "_Truncated:")
}

func TestPublish_NoArtifactStoreTruncates(t *testing.T) {
	f := newPublisherFixture()
	f.job.CommentThreshold = 300
	text := strings.Repeat("y", 500)
	p := NewPublisher(f.items, f.cooldowns, nil, f.notifier, f.job, f.clock, discardLogger())

	pub, failures := p.Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], errNoArtifactStore)
	assert.True(t, pub.Truncated)
}

func TestPublish_CommentFailureStillAdvancesCooldown(t *testing.T) {
	f := newPublisherFixture()
	f.items.CommentErr = errors.New("tracker down")
	text := delimited(sampleReport)

	pub, failures := f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	require.Len(t, failures, 1)
	assert.True(t, IsPersistenceFailure(failures[0]))
	assert.False(t, pub.CommentPosted)
	assert.True(t, pub.CooldownUpdated)
	assert.Len(t, f.notifier.Messages(), 1)
}

func TestPublish_EmptyTranscriptSkipsComment(t *testing.T) {
	f := newPublisherFixture()
	tr := analyzer.Transcript{Text: "", ExitCode: analyzer.ExitTimeout, TimedOut: true}

	pub, failures := f.publisher().Publish(context.Background(), testItem, tr, extraction(""))

	assert.Empty(t, failures)
	assert.False(t, pub.CommentPosted)
	assert.Equal(t, 0, f.items.CommentCount())
	assert.True(t, pub.CooldownUpdated)
	assert.Equal(t, "WL-7 — Add export endpoint | exit=124", pub.Summary)
	msg := f.notifier.Messages()[0]
	assert.Equal(t, "true", msg.Value("Timed out"))
}

func TestPublish_CooldownWriteFailure(t *testing.T) {
	f := newPublisherFixture()
	f.cooldowns.PutErr = errors.New("disk full")
	text := delimited(sampleReport)

	pub, failures := f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	require.Len(t, failures, 1)
	assert.True(t, IsPersistenceFailure(failures[0]))
	assert.False(t, pub.CooldownUpdated)
	assert.True(t, pub.CommentPosted)
}

func TestPublish_CooldownPreservesOtherItems(t *testing.T) {
	f := newPublisherFixture()
	earlier := testutil.Epoch.Add(-3 * time.Hour)
	f.cooldowns.Seed(testJobID, "WL-1", earlier)
	text := delimited(sampleReport)

	f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	last, ok := f.cooldowns.Last(testJobID, "WL-1")
	require.True(t, ok)
	assert.Equal(t, earlier, last)
}

func TestPublish_NotifierErrorIsNotAFailure(t *testing.T) {
	f := newPublisherFixture()
	f.notifier.Err = errors.New("webhook 500")
	text := delimited(sampleReport)

	_, failures := f.publisher().Publish(context.Background(), testItem, analyzer.Transcript{Text: text}, extraction(text))

	assert.Empty(t, failures)
}

func TestRenderArtifactComment_Golden(t *testing.T) {
	got := RenderArtifactComment(DefaultCommentHeading, "s3://ampa-audits/WL-7/abc.md", 70000,
		"All checks pass.\nOne follow-up filed.")
	newGoldie(t).Assert(t, "artifact_comment", []byte(got))
}

func TestRenderArtifactComment_NoSummary(t *testing.T) {
	got := RenderArtifactComment(DefaultCommentHeading, "file:///tmp/a.md", 10, "")
	assert.NotContains(t, got, "## Summary")
	assert.True(t, strings.HasSuffix(got, "file:///tmp/a.md\n"))
}

func TestRenderTruncatedComment_Golden(t *testing.T) {
	got := RenderTruncatedComment(DefaultCommentHeading, "## Summary\n\nÜberprüfung abgeschlossen, alles gut.", 300)
	newGoldie(t).Assert(t, "truncated_comment", []byte(got))
}

func TestFallbackSummary(t *testing.T) {
	got := FallbackSummary(workitem.Candidate{ID: "WL-9", Title: "Fix login"}, 1)
	assert.Equal(t, "WL-9 — Fix login | exit=1", got)
}

func TestCompletionMessage(t *testing.T) {
	d := CompletionDecision{Evidence: EvidenceKeyword}
	msg := CompletionMessage(testItem, d, workitem.StatusUpdate{Status: "completed", Stage: "in_review"})

	assert.Equal(t, "Completed: WL-7", msg.Title)
	assert.Equal(t, "completed", msg.Value("Status"))
	assert.Equal(t, "keyword", msg.Value("Evidence"))
	assert.Empty(t, msg.Value("PR"))
}
