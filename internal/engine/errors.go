package engine

import (
	"errors"
	"fmt"
)

// ErrMissingCollaborator is returned by New when a required port is nil.
var ErrMissingCollaborator = errors.New("engine: missing required collaborator")

// FailureKind categorizes recoverable step failures.
type FailureKind string

const (
	// FailureQuery indicates a listing, show, or code-host query failed.
	FailureQuery FailureKind = "QUERY_FAILURE"

	// FailureInvocation indicates the audit timed out, could not start, or
	// exited unsuccessfully.
	FailureInvocation FailureKind = "INVOCATION_FAILURE"

	// FailureParse indicates extraction fell back to the raw transcript.
	FailureParse FailureKind = "PARSE_FAILURE"

	// FailurePersistence indicates a comment post, status update, or state
	// write failed.
	FailurePersistence FailureKind = "PERSISTENCE_FAILURE"
)

// StepError describes a failure inside one step of a cycle.
//
// Step errors never abort a cycle. They are collected on CycleResult so the
// caller can see what degraded and why.
type StepError struct {
	// Kind identifies the failure category.
	Kind FailureKind

	// Step names the operation, e.g. "list", "show", "comment".
	Step string

	// ItemID identifies the affected work item, if any.
	ItemID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: %s: %v (item=%s)", e.Kind, e.Step, e.Err, e.ItemID)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error {
	return e.Err
}

func newStepError(kind FailureKind, step, itemID string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, ItemID: itemID, Err: err}
}

func isKind(err error, kind FailureKind) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsQueryFailure reports whether err is a query step failure.
// Uses errors.As to handle wrapped errors.
func IsQueryFailure(err error) bool { return isKind(err, FailureQuery) }

// IsInvocationFailure reports whether err is an invocation step failure.
func IsInvocationFailure(err error) bool { return isKind(err, FailureInvocation) }

// IsParseFailure reports whether err is a parse step failure.
func IsParseFailure(err error) bool { return isKind(err, FailureParse) }

// IsPersistenceFailure reports whether err is a persistence step failure.
func IsPersistenceFailure(err error) bool { return isKind(err, FailurePersistence) }
