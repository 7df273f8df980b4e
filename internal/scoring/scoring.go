// Package scoring defines the protocol spoken to the paragraph scoring
// service and the backends that implement it.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joescharf/draftscore/internal/models"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// Paragraph is one entry of a job. Index is the paragraph's position within
// the job and keys the results.
type Paragraph struct {
	Index      int                `json:"index"`
	Text       string             `json:"text"`
	Dimensions []models.Dimension `json:"dimensions"`
}

// DimensionResult is the score and comment for one dimension.
type DimensionResult struct {
	Score int    `json:"score"`
	Text  string `json:"text"`
}

// PollResult is the state of a job. Results is only populated once Status is
// StatusDone.
type PollResult struct {
	Status  JobStatus                                    `json:"status"`
	Results map[int]map[models.Dimension]DimensionResult `json:"results,omitempty"`
	Error   string                                       `json:"error,omitempty"`
}

// Service submits paragraphs for scoring and reports job progress.
type Service interface {
	Submit(ctx context.Context, paragraphs []Paragraph) (string, error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// Canceler is implemented by services that can drop a job before it is
// read, releasing whatever work is still running for it.
type Canceler interface {
	Cancel(ctx context.Context, jobID string) error
}

// DefaultJobTTL is how long an in-process backend keeps a job nobody polls
// to completion.
const DefaultJobTTL = 10 * time.Minute

// StatusError is a non-success response from the scoring service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scoring service returned status %d", e.Code)
	}
	return fmt.Sprintf("scoring service returned status %d: %s", e.Code, e.Message)
}

// IsTransient reports whether err is worth retrying. Client errors (4xx) are
// not; server errors, network failures and anything else are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

func validateParagraphs(paragraphs []Paragraph) error {
	if len(paragraphs) == 0 {
		return &StatusError{Code: 400, Message: "no paragraphs"}
	}
	for _, p := range paragraphs {
		if len(p.Dimensions) == 0 {
			return &StatusError{Code: 400, Message: fmt.Sprintf("paragraph %d: no dimensions", p.Index)}
		}
		for _, d := range p.Dimensions {
			if !d.Valid() {
				return &StatusError{Code: 400, Message: fmt.Sprintf("paragraph %d: unknown dimension %q", p.Index, d)}
			}
		}
	}
	return nil
}

func jobNotFound(jobID string) error {
	return &StatusError{Code: 404, Message: fmt.Sprintf("job %s not found", jobID)}
}
