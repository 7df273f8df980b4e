// Package review ties the resolver, the versioned store and the analysis
// client into the edit/analyze/feedback workflow of one review.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/draftscore/internal/analysis"
	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/resolver"
	"github.com/joescharf/draftscore/internal/store"
)

var (
	// ErrEmptyDocument is returned when a save contains no paragraphs.
	ErrEmptyDocument = errors.New("document has no paragraphs")
	ErrAmbiguousID   = errors.New("ambiguous review ID")
)

// SaveResult reports what a save did to the review.
type SaveResult struct {
	ReviewID    string                 `json:"review_id"`
	Paragraphs  []models.LiveParagraph `json:"paragraphs"`
	Minted      []int64                `json:"minted"`
	Removed     []int64                `json:"removed"`
	Changed     []int64                `json:"changed"`
	Ambiguities []resolver.Ambiguity   `json:"ambiguities,omitempty"`
}

// AnalyzeOptions tunes one analysis.
type AnalyzeOptions struct {
	Force      bool // rescore paragraphs whose current version already has scores
	OnProgress func(analysis.Progress)
}

// AnalyzeResult reports the finished run.
type AnalyzeResult struct {
	Run      *models.AnalysisRun    `json:"run"`
	Failures []*analysis.BatchError `json:"-"`
	Skipped  []int64                `json:"skipped,omitempty"`
}

// Service runs the review workflow. Saves and analyses are serialized per
// review; different reviews never wait on each other.
type Service struct {
	store    store.Store
	resolver *resolver.Resolver
	analyzer *analysis.Client
	log      *slog.Logger

	saves    *keyedSlots
	analyses *keyedSlots
}

// NewService creates a Service.
func NewService(s store.Store, r *resolver.Resolver, a *analysis.Client, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		resolver: r,
		analyzer: a,
		log:      logger.With("component", "review"),
		saves:    newKeyedSlots(),
		analyses: newKeyedSlots(),
	}
}

// CreateReview starts an empty review.
func (s *Service) CreateReview(ctx context.Context, title string) (*models.Review, error) {
	r := &models.Review{Title: strings.TrimSpace(title)}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}

// ListReviews returns all reviews, newest first.
func (s *Service) ListReviews(ctx context.Context) ([]*models.Review, error) {
	return s.store.ListReviews(ctx)
}

// GetReview finds a review by full ID or unique ID prefix.
func (s *Service) GetReview(ctx context.Context, id string) (*models.Review, error) {
	if r, err := s.store.GetReview(ctx, id); err == nil {
		return r, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	upper := strings.ToUpper(id)
	reviews, err := s.store.ListReviews(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*models.Review
	for _, r := range reviews {
		if strings.HasPrefix(r.ID, upper) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("review %s: %w", id, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w %s: matches %d reviews", ErrAmbiguousID, id, len(matches))
	}
}

// Save splits raw into paragraphs, resolves them against the live document
// and records the result in one transaction.
func (s *Service) Save(ctx context.Context, reviewID, raw string) (*SaveResult, error) {
	paragraphs := resolver.SplitParagraphs(raw)
	if len(paragraphs) == 0 {
		return nil, ErrEmptyDocument
	}

	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	release, err := s.saves.acquire(ctx, rev.ID)
	if err != nil {
		return nil, fmt.Errorf("wait for save slot: %w", err)
	}
	defer release()

	// Re-read under the slot: the counter may have moved.
	rev, err = s.store.GetReview(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	res, prev, err := s.resolve(ctx, rev, paragraphs)
	if err != nil {
		return nil, err
	}

	update := store.DocumentUpdate{Removed: res.Removed, NextParagraphID: res.NextID}
	for _, a := range res.Assignments {
		update.Paragraphs = append(update.Paragraphs, store.ParagraphUpdate{StableID: a.StableID, Text: a.Text})
	}
	versions, err := s.store.ApplyDocument(ctx, rev.ID, update)
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	out := &SaveResult{
		ReviewID:    rev.ID,
		Minted:      res.Minted(),
		Removed:     res.Removed,
		Ambiguities: res.Ambiguities,
	}
	for _, a := range res.Assignments {
		v := versions[a.StableID]
		out.Paragraphs = append(out.Paragraphs, models.LiveParagraph{
			StableID: a.StableID, Version: v, Text: a.Text, Position: a.Index,
		})
		if a.Minted || v != prev[a.StableID].Version {
			out.Changed = append(out.Changed, a.StableID)
		}
	}

	s.log.InfoContext(ctx, "document saved",
		"review", rev.ID,
		"paragraphs", len(out.Paragraphs),
		"changed", len(out.Changed),
		"minted", len(out.Minted),
		"removed", len(out.Removed),
	)
	return out, nil
}

// resolve matches paragraphs against the live document. The returned map
// holds the previous live paragraphs by stable ID.
func (s *Service) resolve(ctx context.Context, rev *models.Review, paragraphs []string) (resolver.Resolution, map[int64]models.LiveParagraph, error) {
	prevDoc, err := s.store.AssembleLiveDocument(ctx, rev.ID)
	if err != nil {
		return resolver.Resolution{}, nil, fmt.Errorf("assemble live document: %w", err)
	}

	previous := make([]resolver.Previous, len(prevDoc))
	prev := make(map[int64]models.LiveParagraph, len(prevDoc))
	for i, p := range prevDoc {
		previous[i] = resolver.Previous{StableID: p.StableID, Text: p.Text}
		prev[p.StableID] = p
	}

	res := s.resolver.Resolve(previous, paragraphs, rev.NextParagraphID)
	for _, a := range res.Ambiguities {
		s.log.InfoContext(ctx, "resolver ambiguity", "review", rev.ID, "detail", a.String())
	}
	return res, prev, nil
}

// Preview reports what Save would do with raw without recording anything.
// Versions are the ones Save would assign.
func (s *Service) Preview(ctx context.Context, reviewID, raw string) (*SaveResult, error) {
	paragraphs := resolver.SplitParagraphs(raw)
	if len(paragraphs) == 0 {
		return nil, ErrEmptyDocument
	}
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	res, prev, err := s.resolve(ctx, rev, paragraphs)
	if err != nil {
		return nil, err
	}

	out := &SaveResult{
		ReviewID:    rev.ID,
		Minted:      res.Minted(),
		Removed:     res.Removed,
		Ambiguities: res.Ambiguities,
	}
	for _, a := range res.Assignments {
		v := 1
		if p, ok := prev[a.StableID]; ok {
			v = p.Version
			if p.Text != a.Text {
				v++
			}
		}
		out.Paragraphs = append(out.Paragraphs, models.LiveParagraph{
			StableID: a.StableID, Version: v, Text: a.Text, Position: a.Index,
		})
		if a.Minted || v != prev[a.StableID].Version {
			out.Changed = append(out.Changed, a.StableID)
		}
	}
	return out, nil
}

// Document returns the live document in order.
func (s *Service) Document(ctx context.Context, reviewID string) ([]models.LiveParagraph, error) {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.store.AssembleLiveDocument(ctx, rev.ID)
}

// History returns every recorded version of one paragraph.
func (s *Service) History(ctx context.Context, reviewID string, stableID int64) ([]*models.ReviewItem, error) {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, rev.ID, stableID)
}

// Runs returns the review's analysis runs, newest first.
func (s *Service) Runs(ctx context.Context, reviewID string, limit int) ([]*models.AnalysisRun, error) {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAnalysisRuns(ctx, rev.ID, limit)
}

// MarkViewed records that a dimension's comment was seen.
func (s *Service) MarkViewed(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	return s.store.MarkViewed(ctx, rev.ID, stableID, dim)
}

// Dismiss suppresses a dimension for the paragraph from now on.
func (s *Service) Dismiss(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if err := s.store.MarkDismissed(ctx, rev.ID, stableID, dim); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "dimension dismissed", "review", rev.ID, "paragraph", stableID, "dimension", string(dim))
	return nil
}

func (s *Service) dismissals(ctx context.Context, reviewID string) (map[int64]map[models.Dimension]bool, map[int64]map[models.Dimension]bool, error) {
	states, err := s.store.ListInteractions(ctx, reviewID)
	if err != nil {
		return nil, nil, fmt.Errorf("list interactions: %w", err)
	}
	dismissed := make(map[int64]map[models.Dimension]bool)
	viewed := make(map[int64]map[models.Dimension]bool)
	for _, st := range states {
		if st.Dismissed {
			if dismissed[st.StableParagraphID] == nil {
				dismissed[st.StableParagraphID] = make(map[models.Dimension]bool)
			}
			dismissed[st.StableParagraphID][st.Dimension] = true
		}
		if st.Viewed {
			if viewed[st.StableParagraphID] == nil {
				viewed[st.StableParagraphID] = make(map[models.Dimension]bool)
			}
			viewed[st.StableParagraphID][st.Dimension] = true
		}
	}
	return dismissed, viewed, nil
}

type paragraphVersion struct {
	stableID int64
	version  int
}

// latestScores returns, per live version, the scores of the most recent run
// that scored it.
func latestScores(scores []*models.Score) map[paragraphVersion][]*models.Score {
	lastRun := make(map[paragraphVersion]string)
	for _, sc := range scores {
		lastRun[paragraphVersion{sc.StableParagraphID, sc.Version}] = sc.AnalysisRunID
	}
	out := make(map[paragraphVersion][]*models.Score)
	for _, sc := range scores {
		key := paragraphVersion{sc.StableParagraphID, sc.Version}
		if sc.AnalysisRunID == lastRun[key] {
			out[key] = append(out[key], sc)
		}
	}
	return out
}

// Analyze scores the live paragraphs that need it. Dismissed dimensions are
// never requested. Results for paragraphs edited mid-run are counted as stale
// and dropped. When ctx is canceled, completed batches stay applied and the
// run is recorded as canceled.
func (s *Service) Analyze(ctx context.Context, reviewID string, opts AnalyzeOptions) (*AnalyzeResult, error) {
	rev, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	release, err := s.analyses.acquire(ctx, rev.ID)
	if err != nil {
		return nil, fmt.Errorf("wait for analysis slot: %w", err)
	}
	defer release()

	doc, err := s.store.AssembleLiveDocument(ctx, rev.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble live document: %w", err)
	}
	dismissed, _, err := s.dismissals(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	scores, err := s.store.ListScores(ctx, store.ScoreFilter{ReviewID: rev.ID})
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	scored := latestScores(scores)

	versionOf := make(map[int64]int, len(doc))
	var reqs []analysis.Request
	for _, p := range doc {
		if !opts.Force && len(scored[paragraphVersion{p.StableID, p.Version}]) > 0 {
			continue
		}
		versionOf[p.StableID] = p.Version
		reqs = append(reqs, analysis.Request{
			StableID:   p.StableID,
			Text:       p.Text,
			Dimensions: models.ActiveDimensions(dismissed[p.StableID]),
		})
	}

	run := &models.AnalysisRun{ReviewID: rev.ID, Status: models.RunStatusRunning, TotalParagraphs: len(reqs)}
	if err := s.store.CreateAnalysisRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create analysis run: %w", err)
	}
	log := s.log.With("review", rev.ID, "run", run.ID)

	// Completed batches are applied even after ctx is canceled.
	writeCtx := context.WithoutCancel(ctx)
	var applyErrs []error
	onBatch := func(br analysis.BatchResult) {
		if br.Status != analysis.BatchSucceeded {
			return
		}
		for _, p := range br.Paragraphs {
			if len(p.Scores) == 0 {
				continue
			}
			err := s.store.ApplyScores(writeCtx, rev.ID, p.StableID, versionOf[p.StableID], run.ID, p.Scores)
			switch {
			case err == nil:
				run.ScoredParagraphs++
			case errors.Is(err, store.ErrVersionConflict):
				run.StaleParagraphs++
				log.Info("discarded stale scores", "paragraph", p.StableID, "version", versionOf[p.StableID])
			default:
				run.FailedParagraphs++
				applyErrs = append(applyErrs, fmt.Errorf("paragraph %d: %w", p.StableID, err))
				log.Error("apply scores failed", "paragraph", p.StableID, "error", err)
			}
		}
	}

	res, analyzeErr := s.analyzer.Analyze(ctx, reqs, analysis.Handlers{
		OnBatch:    onBatch,
		OnProgress: opts.OnProgress,
	})

	var errs []error
	for _, f := range res.Failures {
		run.FailedParagraphs += len(f.StableIDs)
		errs = append(errs, f)
	}
	errs = append(errs, applyErrs...)

	now := time.Now().UTC()
	run.FinishedAt = &now
	switch {
	case analyzeErr != nil:
		run.Status = models.RunStatusCanceled
		errs = append(errs, analyzeErr)
	case run.FailedParagraphs > 0 && run.ScoredParagraphs == 0:
		run.Status = models.RunStatusFailed
	case run.FailedParagraphs > 0:
		run.Status = models.RunStatusPartial
	default:
		run.Status = models.RunStatusCompleted
	}
	if len(errs) > 0 {
		run.Error = errors.Join(errs...).Error()
	}
	if err := s.store.UpdateAnalysisRun(writeCtx, run); err != nil {
		return nil, fmt.Errorf("finish analysis run: %w", err)
	}

	log.Info("analysis run finished",
		"status", string(run.Status),
		"scored", run.ScoredParagraphs,
		"failed", run.FailedParagraphs,
		"stale", run.StaleParagraphs,
	)

	out := &AnalyzeResult{Run: run, Failures: res.Failures, Skipped: res.Skipped}
	if analyzeErr != nil {
		return out, analyzeErr
	}
	return out, nil
}
