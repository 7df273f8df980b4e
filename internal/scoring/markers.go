package scoring

import (
	"fmt"
	"regexp"

	"github.com/joescharf/draftscore/internal/models"
)

var markerRe = regexp.MustCompile(`\b(LOW|MID|HIGH)_([AHGV])\b`)

var markerScores = map[string]int{
	"LOW":  1,
	"MID":  3,
	"HIGH": 5,
}

// ParseMarkers returns the scores forced by test markers embedded in text.
// The last marker for a dimension wins.
func ParseMarkers(text string) map[models.Dimension]int {
	matches := markerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	forced := make(map[models.Dimension]int, len(matches))
	for _, m := range matches {
		dim, ok := models.DimensionFromLetter(m[2])
		if !ok {
			continue
		}
		forced[dim] = markerScores[m[1]]
	}
	return forced
}

// ApplyMarkers overrides results with any scores forced by markers in text.
// Forced dimensions are added when the backend did not return them.
func ApplyMarkers(text string, results map[models.Dimension]DimensionResult) map[models.Dimension]DimensionResult {
	forced := ParseMarkers(text)
	if len(forced) == 0 {
		return results
	}
	if results == nil {
		results = make(map[models.Dimension]DimensionResult, len(forced))
	}
	for dim, score := range forced {
		results[dim] = DimensionResult{Score: score, Text: cannedComment(dim, score)}
	}
	return results
}

func cannedComment(dim models.Dimension, score int) string {
	switch models.SeverityFor(score) {
	case models.SeverityCritical:
		return fmt.Sprintf("The paragraph falls well short on %s. Rework it before sending.", dim)
	case models.SeverityModerate:
		return fmt.Sprintf("The paragraph is acceptable on %s but could be sharpened.", dim)
	default:
		return fmt.Sprintf("No issues with %s.", dim)
	}
}
