package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepError_Message(t *testing.T) {
	cause := errors.New("exit status 2")

	withItem := newStepError(FailurePersistence, "comment", "WL-1", cause)
	assert.Equal(t, "PERSISTENCE_FAILURE: comment: exit status 2 (item=WL-1)", withItem.Error())

	withoutItem := newStepError(FailureQuery, "list in_review", "", cause)
	assert.Equal(t, "QUERY_FAILURE: list in_review: exit status 2", withoutItem.Error())
}

func TestStepError_UnwrapAndKindHelpers(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("cycle: %w", newStepError(FailureInvocation, "invoke", "WL-1", cause))

	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, IsInvocationFailure(wrapped))
	assert.False(t, IsQueryFailure(wrapped))
	assert.False(t, IsParseFailure(wrapped))
	assert.False(t, IsPersistenceFailure(wrapped))
	assert.False(t, IsInvocationFailure(cause))
}
