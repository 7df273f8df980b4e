package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDimension is returned when a dimension name is not part of the closed set.
var ErrUnknownDimension = errors.New("unknown dimension")

// Dimension is one fixed quality axis a paragraph is scored on.
type Dimension string

const (
	DimensionActionability Dimension = "actionability"
	DimensionHelpfulness   Dimension = "helpfulness"
	DimensionGrounding     Dimension = "grounding"
	DimensionVerifiability Dimension = "verifiability"
)

// AllDimensions lists every dimension in display order.
var AllDimensions = []Dimension{
	DimensionActionability,
	DimensionHelpfulness,
	DimensionGrounding,
	DimensionVerifiability,
}

// Letter returns the single-letter code used by test markers (LOW_A, MID_H, ...).
func (d Dimension) Letter() string {
	switch d {
	case DimensionActionability:
		return "A"
	case DimensionHelpfulness:
		return "H"
	case DimensionGrounding:
		return "G"
	case DimensionVerifiability:
		return "V"
	}
	return ""
}

// Valid reports whether d belongs to the closed set.
func (d Dimension) Valid() bool {
	return d.Letter() != ""
}

// ParseDimension accepts a full name or marker letter, case-insensitively.
func ParseDimension(s string) (Dimension, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, d := range AllDimensions {
		if norm == string(d) || norm == strings.ToLower(d.Letter()) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// DimensionFromLetter maps a marker letter to its dimension.
func DimensionFromLetter(letter string) (Dimension, bool) {
	for _, d := range AllDimensions {
		if strings.EqualFold(d.Letter(), letter) {
			return d, true
		}
	}
	return "", false
}

// ActiveDimensions returns AllDimensions minus the dismissed ones, in display order.
func ActiveDimensions(dismissed map[Dimension]bool) []Dimension {
	var out []Dimension
	for _, d := range AllDimensions {
		if !dismissed[d] {
			out = append(out, d)
		}
	}
	return out
}
