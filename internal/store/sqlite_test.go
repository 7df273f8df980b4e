package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/draftscore/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newTestReview(t *testing.T, s *SQLiteStore) *models.Review {
	t.Helper()
	r := &models.Review{Title: "test review"}
	require.NoError(t, s.CreateReview(context.Background(), r))
	return r
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Reviews ---

func TestReviewCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newTestReview(t, s)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, int64(1), r.NextParagraphID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "test review", got.Title)

	reviews, err := s.ListReviews(ctx)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	_, err = s.GetReview(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Versions ---

func TestRecordVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	v, err := s.RecordVersion(ctx, r.ID, 1, "first text")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Same text is a no-op.
	v, err = s.RecordVersion(ctx, r.ID, 1, "first text")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = s.RecordVersion(ctx, r.ID, 1, "second text")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	items, err := s.ListVersions(ctx, r.ID, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first text", items[0].Text)
	assert.Equal(t, "second text", items[1].Text)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.NextParagraphID)

	_, err = s.RecordVersion(ctx, "missing", 1, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkDeleted_RetiresParagraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.ApplyDocument(ctx, r.ID, DocumentUpdate{
		Paragraphs: []ParagraphUpdate{{StableID: 1, Text: "keep"}, {StableID: 2, Text: "drop"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkDeleted(ctx, r.ID, 2))

	doc, err := s.AssembleLiveDocument(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, doc, 1)
	assert.Equal(t, int64(1), doc[0].StableID)

	// History survives retirement.
	items, err := s.ListVersions(ctx, r.ID, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsDeleted)

	_, err = s.RecordVersion(ctx, r.ID, 2, "revived")
	assert.ErrorIs(t, err, ErrRetired)

	assert.ErrorIs(t, s.MarkDeleted(ctx, r.ID, 99), ErrNotFound)
}

func TestApplyDocument_AssembleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	versions, err := s.ApplyDocument(ctx, r.ID, DocumentUpdate{
		Paragraphs: []ParagraphUpdate{
			{StableID: 1, Text: "Alpha paragraph."},
			{StableID: 2, Text: "Beta paragraph."},
			{StableID: 3, Text: "Gamma paragraph."},
		},
		NextParagraphID: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, versions)

	// Reorder, edit one, drop one, add one.
	versions, err = s.ApplyDocument(ctx, r.ID, DocumentUpdate{
		Paragraphs: []ParagraphUpdate{
			{StableID: 3, Text: "Gamma paragraph."},
			{StableID: 1, Text: "Alpha paragraph, revised."},
			{StableID: 4, Text: "Delta paragraph."},
		},
		Removed:         []int64{2},
		NextParagraphID: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{3: 1, 1: 2, 4: 1}, versions)

	doc, err := s.AssembleLiveDocument(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, doc, 3)
	assert.Equal(t, models.LiveParagraph{StableID: 3, Version: 1, Text: "Gamma paragraph.", Position: 0}, doc[0])
	assert.Equal(t, models.LiveParagraph{StableID: 1, Version: 2, Text: "Alpha paragraph, revised.", Position: 1}, doc[1])
	assert.Equal(t, models.LiveParagraph{StableID: 4, Version: 1, Text: "Delta paragraph.", Position: 2}, doc[2])

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.NextParagraphID)
}

func TestApplyDocument_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.ApplyDocument(ctx, r.ID, DocumentUpdate{
		Paragraphs: []ParagraphUpdate{{StableID: 1, Text: "one"}},
	})
	require.NoError(t, err)

	// Removing an unknown paragraph fails the whole update.
	_, err = s.ApplyDocument(ctx, r.ID, DocumentUpdate{
		Paragraphs: []ParagraphUpdate{{StableID: 1, Text: "one changed"}, {StableID: 2, Text: "two"}},
		Removed:    []int64{42},
	})
	require.ErrorIs(t, err, ErrNotFound)

	doc, err := s.AssembleLiveDocument(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, doc, 1)
	assert.Equal(t, "one", doc[0].Text)
	assert.Equal(t, 1, doc[0].Version)
}

func TestAssembleLiveDocument_Empty(t *testing.T) {
	s := newTestStore(t)
	r := newTestReview(t, s)

	doc, err := s.AssembleLiveDocument(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, doc)
}

// --- Scores ---

func TestApplyScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)

	err = s.ApplyScores(ctx, r.ID, 1, 1, "run-1", []models.ScoreValue{
		{Dimension: models.DimensionActionability, Score: 2, Comment: "vague"},
		{Dimension: models.DimensionGrounding, Score: 5},
	})
	require.NoError(t, err)

	scores, err := s.ListScores(ctx, ScoreFilter{ReviewID: r.ID, StableID: 1})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, models.DimensionActionability, scores[0].Dimension)
	assert.Equal(t, 2, scores[0].Score)
	assert.Equal(t, "vague", scores[0].Comment)
	assert.Equal(t, "run-1", scores[0].AnalysisRunID)

	scores, err = s.ListScores(ctx, ScoreFilter{ReviewID: r.ID, AnalysisRunID: "other"})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestApplyScores_NeverRewritesRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)
	require.NoError(t, s.ApplyScores(ctx, r.ID, 1, 1, "run-1", []models.ScoreValue{
		{Dimension: models.DimensionActionability, Score: 1, Comment: "first"},
	}))

	require.NoError(t, s.ApplyScores(ctx, r.ID, 1, 1, "run-1", []models.ScoreValue{
		{Dimension: models.DimensionActionability, Score: 5, Comment: "second"},
		{Dimension: models.DimensionGrounding, Score: 3, Comment: "new dimension"},
	}))

	scores, err := s.ListScores(ctx, ScoreFilter{ReviewID: r.ID, AnalysisRunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, models.DimensionActionability, scores[0].Dimension)
	assert.Equal(t, 1, scores[0].Score)
	assert.Equal(t, "first", scores[0].Comment)
	assert.Equal(t, models.DimensionGrounding, scores[1].Dimension)

	// A later run for the same version adds rows alongside the first.
	require.NoError(t, s.ApplyScores(ctx, r.ID, 1, 1, "run-2", []models.ScoreValue{
		{Dimension: models.DimensionActionability, Score: 4, Comment: "rescored"},
	}))
	scores, err = s.ListScores(ctx, ScoreFilter{ReviewID: r.ID, Version: 1})
	require.NoError(t, err)
	assert.Len(t, scores, 3)
}

func TestApplyScores_VersionConflictLeavesStateUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.RecordVersion(ctx, r.ID, 1, "original")
	require.NoError(t, err)
	require.NoError(t, s.ApplyScores(ctx, r.ID, 1, 1, "run-1", []models.ScoreValue{
		{Dimension: models.DimensionHelpfulness, Score: 4},
	}))

	// The paragraph is edited while a second analysis is in flight.
	v, err := s.RecordVersion(ctx, r.ID, 1, "edited")
	require.NoError(t, err)
	require.Equal(t, 2, v)

	err = s.ApplyScores(ctx, r.ID, 1, 1, "run-2", []models.ScoreValue{
		{Dimension: models.DimensionHelpfulness, Score: 1},
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	scores, err := s.ListScores(ctx, ScoreFilter{ReviewID: r.ID})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "run-1", scores[0].AnalysisRunID)
	assert.Equal(t, 4, scores[0].Score)

	// Scores for a retired paragraph are also rejected.
	require.NoError(t, s.MarkDeleted(ctx, r.ID, 1))
	err = s.ApplyScores(ctx, r.ID, 1, 2, "run-3", []models.ScoreValue{
		{Dimension: models.DimensionHelpfulness, Score: 3},
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestApplyScores_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)
	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)

	err = s.ApplyScores(ctx, r.ID, 1, 1, "run", []models.ScoreValue{{Dimension: "tone", Score: 3}})
	assert.ErrorIs(t, err, models.ErrUnknownDimension)

	err = s.ApplyScores(ctx, r.ID, 1, 1, "run", []models.ScoreValue{{Dimension: models.DimensionGrounding, Score: 6}})
	assert.ErrorIs(t, err, ErrInvalidScore)

	err = s.ApplyScores(ctx, r.ID, 7, 1, "run", []models.ScoreValue{{Dimension: models.DimensionGrounding, Score: 3}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyScores_WriteFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)
	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)

	require.NoError(t, s.Close())

	err = s.ApplyScores(ctx, r.ID, 1, 1, "run", []models.ScoreValue{{Dimension: models.DimensionGrounding, Score: 3}})
	require.ErrorIs(t, err, ErrWriteFailure)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "apply scores", we.Op)
}

// --- Interaction state ---

func TestMarkDismissed_StickyAcrossVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	_, err := s.RecordVersion(ctx, r.ID, 1, "v1")
	require.NoError(t, err)

	require.NoError(t, s.MarkDismissed(ctx, r.ID, 1, models.DimensionActionability))

	_, err = s.RecordVersion(ctx, r.ID, 1, "v2")
	require.NoError(t, err)

	// Viewing afterwards never clears dismissal.
	require.NoError(t, s.MarkViewed(ctx, r.ID, 1, models.DimensionActionability))
	require.NoError(t, s.MarkDismissed(ctx, r.ID, 1, models.DimensionActionability))

	states, err := s.ListInteractions(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	st := states[0]
	assert.Equal(t, models.DimensionActionability, st.Dimension)
	assert.True(t, st.Dismissed)
	assert.True(t, st.Viewed)
	require.NotNil(t, st.DismissedAt)
	require.NotNil(t, st.ViewedAt)
}

func TestMarkViewed_KeepsFirstTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)
	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)

	require.NoError(t, s.MarkViewed(ctx, r.ID, 1, models.DimensionVerifiability))
	states, err := s.ListInteractions(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	first := *states[0].ViewedAt

	require.NoError(t, s.MarkViewed(ctx, r.ID, 1, models.DimensionVerifiability))
	states, err = s.ListInteractions(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*states[0].ViewedAt))
	assert.False(t, states[0].Dismissed)
}

func TestInteraction_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	assert.ErrorIs(t, s.MarkViewed(ctx, r.ID, 1, models.DimensionGrounding), ErrNotFound)

	_, err := s.RecordVersion(ctx, r.ID, 1, "text")
	require.NoError(t, err)
	assert.ErrorIs(t, s.MarkDismissed(ctx, r.ID, 1, "tone"), models.ErrUnknownDimension)
}

// --- Analysis runs ---

func TestAnalysisRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	run := &models.AnalysisRun{ReviewID: r.ID, TotalParagraphs: 12}
	require.NoError(t, s.CreateAnalysisRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	run.Status = models.RunStatusPartial
	run.ScoredParagraphs = 7
	run.FailedParagraphs = 5
	run.Error = "batch 2: transient"
	now := run.StartedAt
	run.FinishedAt = &now
	require.NoError(t, s.UpdateAnalysisRun(ctx, run))

	second := &models.AnalysisRun{ReviewID: r.ID, TotalParagraphs: 1, StartedAt: run.StartedAt.Add(time.Second)}
	require.NoError(t, s.CreateAnalysisRun(ctx, second))

	runs, err := s.ListAnalysisRuns(ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, models.RunStatusPartial, runs[1].Status)
	assert.Equal(t, 5, runs[1].FailedParagraphs)
	assert.NotNil(t, runs[1].FinishedAt)
	assert.Nil(t, runs[0].FinishedAt)

	runs, err = s.ListAnalysisRuns(ctx, r.ID, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	missing := &models.AnalysisRun{ID: "nope", Status: models.RunStatusFailed}
	assert.ErrorIs(t, s.UpdateAnalysisRun(ctx, missing), ErrNotFound)
}
