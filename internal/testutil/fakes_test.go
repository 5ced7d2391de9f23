package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/artifact"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

var (
	_ workitem.Store      = (*Items)(nil)
	_ analyzer.Analyzer   = (*Analyzer)(nil)
	_ codehost.CodeHost   = (*CodeHost)(nil)
	_ cooldown.StateStore = (*Cooldowns)(nil)
	_ artifact.Store      = (*Artifacts)(nil)
	_ notify.Notifier     = (*Notifier)(nil)
)

func TestItems_ListErrorsConsumedInOrder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	items := NewItems().
		AddToStage("in_review", workitem.Candidate{ID: "WL-1"}).
		FailList("in_review", boom)

	_, err := items.ListByStage(ctx, "in_review")
	require.ErrorIs(t, err, boom)

	got, err := items.ListByStage(ctx, "in_review")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "WL-1", got[0].ID)
	assert.Equal(t, 2, items.ListCalls("in_review"))
}

func TestItems_ShowUnknownIsNotFound(t *testing.T) {
	_, err := NewItems().Show(context.Background(), "WL-404")
	assert.ErrorIs(t, err, workitem.ErrNotFound)
}

func TestItems_RecordsCommentsAndUpdates(t *testing.T) {
	ctx := context.Background()
	items := NewItems()

	require.NoError(t, items.AddComment(ctx, "WL-1", "hello"))
	require.NoError(t, items.UpdateStatus(ctx, "WL-1", workitem.StatusUpdate{Status: "completed"}))

	assert.Equal(t, []string{"hello"}, items.Comments("WL-1"))
	assert.Equal(t, 1, items.CommentCount())
	assert.Equal(t, "completed", items.Updates("WL-1")[0].Status)
}

func TestCooldowns_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewCooldowns().Seed("job", "WL-1", Epoch)

	got, err := store.Get(ctx, "job")
	require.NoError(t, err)
	got["WL-2"] = Epoch.Add(time.Hour)

	_, ok := store.Last("job", "WL-2")
	assert.False(t, ok)
	last, ok := store.Last("job", "WL-1")
	require.True(t, ok)
	assert.Equal(t, Epoch, last)
}

func TestCodeHost_AnswersByRef(t *testing.T) {
	host := NewCodeHost("acme/api#7")
	ctx := context.Background()

	merged, err := host.IsMerged(ctx, codehost.PRRef{Owner: "acme", Repo: "api", Number: 7})
	require.NoError(t, err)
	assert.True(t, merged)

	merged, err = host.IsMerged(ctx, codehost.PRRef{Owner: "acme", Repo: "api", Number: 8})
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Len(t, host.Calls(), 2)
}

func TestArtifacts_StoresBytes(t *testing.T) {
	store := NewArtifacts()
	ref, err := store.Store(context.Background(), "WL-1", []byte("transcript"))
	require.NoError(t, err)

	data, ok := store.Object(ref)
	require.True(t, ok)
	assert.Equal(t, "transcript", string(data))
}

func TestNotifier_RecordsEvenOnError(t *testing.T) {
	n := &Notifier{Err: errors.New("down")}
	err := n.Send(context.Background(), notify.Message{Title: "Audit: WL-1"})
	require.Error(t, err)
	assert.Equal(t, []string{"Audit: WL-1"}, n.Titles())
}
