package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchTransient marks a batch that kept failing with retryable errors
	// until the retry budget ran out.
	ErrBatchTransient = errors.New("batch transient failure")
	// ErrBatchValidation marks a batch the scoring service rejected outright.
	ErrBatchValidation = errors.New("batch validation failure")

	// ErrJobTimeout is returned when a job does not finish within its budget.
	ErrJobTimeout = errors.New("job timed out")
	// ErrJobFailed is returned when the service reports a job as failed.
	ErrJobFailed = errors.New("job failed")
)

// BatchError describes a batch that produced no scores. Kind is
// ErrBatchTransient or ErrBatchValidation; Err is the last underlying error.
type BatchError struct {
	// Batch is the 0-based batch index; messages print it 1-based.
	Batch     int
	StableIDs []int64
	Attempts  int
	Kind      error
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d paragraphs) failed after %d attempt(s): %v",
		e.Batch+1, len(e.StableIDs), e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
