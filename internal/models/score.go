package models

import "time"

// Severity is the visible bucket derived from a score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityHidden   Severity = "hidden"
)

const (
	MinScore = 1
	MaxScore = 5
)

// SeverityFor maps a 1-5 score to its severity: 1-2 critical, 3-4 moderate, 5 hidden.
func SeverityFor(score int) Severity {
	switch {
	case score <= 2:
		return SeverityCritical
	case score <= 4:
		return SeverityModerate
	default:
		return SeverityHidden
	}
}

// Rank orders severities from worst (0) to least visible.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityModerate:
		return 1
	default:
		return 2
	}
}

// ScoreValue is one dimension's result before it is tied to a stored version.
type ScoreValue struct {
	Dimension Dimension
	Score     int
	Comment   string
}

// Score is a persisted ScoreValue attached to a specific review item version.
// Rows are never updated; later runs supersede them.
type Score struct {
	ReviewID          string
	StableParagraphID int64
	Version           int
	AnalysisRunID     string
	Dimension         Dimension
	Score             int
	Comment           string
	CreatedAt         time.Time
}

// Severity returns the derived severity of the score.
func (s *Score) Severity() Severity {
	return SeverityFor(s.Score)
}
