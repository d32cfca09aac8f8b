package models

import "fmt"

// ValidationError reports malformed input (empty title, out-of-range mood
// score). It is surfaced immediately to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StaleStateError reports an attempted transition on a proposal that is no
// longer pending. This is an expected outcome under duplicate requests and
// must never leave a partial write behind.
type StaleStateError struct {
	ProposalID string
	Status     ProposalStatus
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("proposal %s already resolved (status %s)", e.ProposalID, e.Status)
}

// TransientGenerationError reports that the text-generation service failed,
// timed out, or was cancelled. Callers decide whether to retry; no partial
// state is persisted on this path.
type TransientGenerationError struct {
	Op  string
	Err error
}

func (e *TransientGenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Err)
}

func (e *TransientGenerationError) Unwrap() error { return e.Err }
