package models

import "time"

// RunStatus represents the state of an analysis run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// AnalysisRun records one execution of the scoring service against a review.
type AnalysisRun struct {
	ID               string
	ReviewID         string
	Status           RunStatus
	TotalParagraphs  int
	ScoredParagraphs int
	FailedParagraphs int
	StaleParagraphs  int // results rejected because the paragraph changed mid-run
	Error            string
	StartedAt        time.Time
	FinishedAt       *time.Time
}
