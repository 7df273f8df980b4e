package review

import (
	"context"
	"fmt"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/store"
)

// DimensionFeedback is one dimension's current verdict. Comment is empty for
// hidden (score 5) results.
type DimensionFeedback struct {
	Dimension models.Dimension `json:"dimension"`
	Score     int              `json:"score"`
	Severity  models.Severity  `json:"severity"`
	Comment   string           `json:"comment,omitempty"`
	Viewed    bool             `json:"viewed"`
}

// ParagraphFeedback is what the author sees for one live paragraph.
type ParagraphFeedback struct {
	StableID   int64               `json:"stable_id"`
	Version    int                 `json:"version"`
	Position   int                 `json:"position"`
	Text       string              `json:"text"`
	Analyzed   bool                `json:"analyzed"`
	Severity   models.Severity     `json:"severity"`
	Dimensions []DimensionFeedback `json:"dimensions"`
	Dismissed  []models.Dimension  `json:"dismissed,omitempty"`
}

// Visible returns the dimensions whose comment is shown.
func (p ParagraphFeedback) Visible() []DimensionFeedback {
	var out []DimensionFeedback
	for _, d := range p.Dimensions {
		if d.Severity != models.SeverityHidden {
			out = append(out, d)
		}
	}
	return out
}

// Feedback assembles the current feedback for every live paragraph: the
// latest run's scores for the current version, minus dismissed dimensions.
// A paragraph's severity is the worst among its visible dimensions.
func (s *Service) Feedback(ctx context.Context, reviewID string) ([]ParagraphFeedback, error) {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.AssembleLiveDocument(ctx, rev.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble live document: %w", err)
	}
	dismissed, viewed, err := s.dismissals(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	scores, err := s.store.ListScores(ctx, store.ScoreFilter{ReviewID: rev.ID})
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	latest := latestScores(scores)

	out := make([]ParagraphFeedback, 0, len(doc))
	for _, p := range doc {
		pf := ParagraphFeedback{
			StableID: p.StableID,
			Version:  p.Version,
			Position: p.Position,
			Text:     p.Text,
			Severity: models.SeverityHidden,
		}
		for _, d := range models.AllDimensions {
			if dismissed[p.StableID][d] {
				pf.Dismissed = append(pf.Dismissed, d)
			}
		}

		byDim := make(map[models.Dimension]*models.Score)
		for _, sc := range latest[paragraphVersion{p.StableID, p.Version}] {
			byDim[sc.Dimension] = sc
		}
		pf.Analyzed = len(byDim) > 0

		for _, d := range models.AllDimensions {
			sc, ok := byDim[d]
			if !ok || dismissed[p.StableID][d] {
				continue
			}
			df := DimensionFeedback{
				Dimension: d,
				Score:     sc.Score,
				Severity:  sc.Severity(),
				Viewed:    viewed[p.StableID][d],
			}
			if df.Severity != models.SeverityHidden {
				df.Comment = sc.Comment
				if df.Severity.Rank() < pf.Severity.Rank() {
					pf.Severity = df.Severity
				}
			}
			pf.Dimensions = append(pf.Dimensions, df)
		}
		out = append(out, pf)
	}
	return out, nil
}
