package store

import (
	"context"

	"github.com/joescharf/draftscore/internal/models"
)

// ParagraphUpdate is one paragraph of a resolved document, in document order.
type ParagraphUpdate struct {
	StableID int64
	Text     string
}

// DocumentUpdate is the outcome of one resolution, committed atomically.
type DocumentUpdate struct {
	Paragraphs      []ParagraphUpdate
	Removed         []int64
	NextParagraphID int64
}

// ScoreFilter narrows ListScores. Zero values are ignored except ReviewID,
// which is required.
type ScoreFilter struct {
	ReviewID      string
	StableID      int64
	Version       int
	AnalysisRunID string
}

// Store defines the persistence interface for reviews, paragraph versions,
// scores and interaction state.
type Store interface {
	// Reviews
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviews(ctx context.Context) ([]*models.Review, error)

	// Paragraph versions
	RecordVersion(ctx context.Context, reviewID string, stableID int64, text string) (int, error)
	MarkDeleted(ctx context.Context, reviewID string, stableID int64) error
	ApplyDocument(ctx context.Context, reviewID string, update DocumentUpdate) (map[int64]int, error)
	AssembleLiveDocument(ctx context.Context, reviewID string) ([]models.LiveParagraph, error)
	ListVersions(ctx context.Context, reviewID string, stableID int64) ([]*models.ReviewItem, error)

	// Scores
	ApplyScores(ctx context.Context, reviewID string, stableID int64, version int, runID string, scores []models.ScoreValue) error
	ListScores(ctx context.Context, filter ScoreFilter) ([]*models.Score, error)

	// Interaction state
	MarkViewed(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error
	MarkDismissed(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error
	ListInteractions(ctx context.Context, reviewID string) ([]*models.InteractionState, error)

	// Analysis runs
	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	ListAnalysisRuns(ctx context.Context, reviewID string, limit int) ([]*models.AnalysisRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
