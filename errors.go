package crowdfund

import "fmt"

// PreconditionError indicates a submit call was made without the
// collaborators it requires (most commonly: no signer configured).
// It is raised before any network round-trip.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// ValidationError indicates a locally-checkable input violated the
// program's bounds (empty title, non-positive goal, below-minimum
// donation). It is raised before any network round-trip.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SubmissionError indicates the transport or the ledger program rejected
// a submitted operation, or the confirmation wait timed out. The client
// never retries a submission on its own: the original may still land after
// a timeout, so a blind resubmission risks duplicate effect. Retry policy,
// if any, belongs to the caller.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// FetchError indicates a read failed for reasons other than legitimate
// absence. "Record does not exist yet" is never a FetchError; fetches
// report it as a false presence flag instead.
type FetchError struct {
	Address Address
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s failed: %v", e.Address, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type retryable interface {
	CanRetry() bool
}

type retryableError struct {
	Err      error
	canRetry bool
}

func (e retryableError) Error() string {
	return e.Err.Error()
}

func (e retryableError) Unwrap() error {
	return e.Err
}

func (e retryableError) CanRetry() bool {
	return e.canRetry
}
