package models

import "time"

// InteractionState tracks whether a paragraph's comment for one dimension was
// viewed or dismissed. Transitions only move forward.
type InteractionState struct {
	ReviewID          string
	StableParagraphID int64
	Dimension         Dimension
	Viewed            bool
	ViewedAt          *time.Time
	Dismissed         bool
	DismissedAt       *time.Time
}
