package models

import "time"

// Review is one document under iterative editing and analysis.
type Review struct {
	ID              string
	Title           string
	NextParagraphID int64 // next stable paragraph ID to mint; only ever grows
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReviewItem is one immutable snapshot of a paragraph's text.
type ReviewItem struct {
	ReviewID          string
	StableParagraphID int64
	Version           int
	Text              string
	IsDeleted         bool
	CreatedAt         time.Time
}

// LiveParagraph is the highest, non-deleted version of a stable paragraph
// together with its place in the assembled document.
type LiveParagraph struct {
	StableID int64
	Version  int
	Text     string
	Position int
}
