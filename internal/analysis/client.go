// Package analysis drives paragraph scoring jobs against a scoring.Service:
// it batches requests, submits and polls jobs, applies timeout and retry
// policy and reports progress as batches finish.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/scoring"
)

// Request is one paragraph to score on the given dimensions.
type Request struct {
	StableID   int64
	Text       string
	Dimensions []models.Dimension
}

// ParagraphResult holds the scores produced for one paragraph.
type ParagraphResult struct {
	StableID int64
	Scores   []models.ScoreValue
}

// BatchStatus is how a batch ended.
type BatchStatus string

const (
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchCanceled  BatchStatus = "canceled"
)

// BatchResult is the outcome of one batch. Err is a *BatchError when Status
// is BatchFailed and the context error when it is BatchCanceled.
type BatchResult struct {
	Batch      int
	Status     BatchStatus
	StableIDs  []int64
	Paragraphs []ParagraphResult
	Attempts   int
	Err        error
}

// Progress carries cumulative counts after a batch completes.
type Progress struct {
	CompletedBatches int
	TotalBatches     int
	ScoredParagraphs int
	FailedParagraphs int
	TotalParagraphs  int
}

// Handlers are optional callbacks. They are never invoked concurrently.
// OnBatch sees every batch that completed, successfully or not, before the
// matching OnProgress call.
type Handlers struct {
	OnBatch    func(BatchResult)
	OnProgress func(Progress)
}

// Result is everything Analyze learned, including partial outcomes.
type Result struct {
	Scores   map[int64][]models.ScoreValue
	Batches  []BatchResult
	Failures []*BatchError
	Skipped  []int64
}

// Canceled returns the indexes of batches that never completed because the
// context was canceled.
func (r *Result) Canceled() []int {
	var out []int
	for _, b := range r.Batches {
		if b.Status == BatchCanceled {
			out = append(out, b.Batch)
		}
	}
	return out
}

// cancelTimeout bounds the request that tells the service to drop a job.
const cancelTimeout = 5 * time.Second

// Client orchestrates scoring jobs.
type Client struct {
	svc scoring.Service
	cfg Config
	log *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(svc scoring.Service, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analysis config: %w", err)
	}
	return &Client{svc: svc, cfg: cfg, log: logger.With("component", "analysis")}, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// splitBatches groups requests into consecutive chunks of at most size.
func splitBatches(reqs []Request, size int) [][]Request {
	var batches [][]Request
	for start := 0; start < len(reqs); start += size {
		end := min(start+size, len(reqs))
		batches = append(batches, reqs[start:end])
	}
	return batches
}

func stableIDs(batch []Request) []int64 {
	ids := make([]int64, len(batch))
	for i, r := range batch {
		ids[i] = r.StableID
	}
	return ids
}

// Analyze scores reqs. Requests without dimensions are skipped. Batches run
// concurrently and fail independently. When ctx is canceled, no new batch
// starts, waits are interrupted, and the partial Result is returned together
// with ctx.Err().
func (c *Client) Analyze(ctx context.Context, reqs []Request, h Handlers) (*Result, error) {
	res := &Result{Scores: make(map[int64][]models.ScoreValue)}

	var active []Request
	for _, r := range reqs {
		if len(r.Dimensions) == 0 {
			res.Skipped = append(res.Skipped, r.StableID)
			continue
		}
		active = append(active, r)
	}

	batches := splitBatches(active, c.cfg.BatchSize)
	res.Batches = make([]BatchResult, len(batches))
	progress := Progress{TotalBatches: len(batches), TotalParagraphs: len(active)}

	c.log.Info("analysis started",
		slog.Int("paragraphs", len(active)),
		slog.Int("batches", len(batches)),
		slog.Int("skipped", len(res.Skipped)),
	)

	var mu sync.Mutex
	record := func(br BatchResult) {
		mu.Lock()
		defer mu.Unlock()

		res.Batches[br.Batch] = br
		if br.Status == BatchCanceled {
			return
		}
		progress.CompletedBatches++
		switch br.Status {
		case BatchSucceeded:
			for _, p := range br.Paragraphs {
				if len(p.Scores) > 0 {
					res.Scores[p.StableID] = p.Scores
					progress.ScoredParagraphs++
				}
			}
		case BatchFailed:
			progress.FailedParagraphs += len(br.StableIDs)
		}
		if h.OnBatch != nil {
			h.OnBatch(br)
		}
		if h.OnProgress != nil {
			h.OnProgress(progress)
		}
	}

	canceled := func(i int, batch []Request) BatchResult {
		return BatchResult{Batch: i, Status: BatchCanceled, StableIDs: stableIDs(batch), Err: ctx.Err()}
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, batch := range batches {
		if ctx.Err() != nil {
			record(canceled(i, batch))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				record(canceled(i, batch))
				return nil
			}
			record(c.runBatch(ctx, i, batch))
			return nil
		})
	}
	_ = g.Wait()

	for i := range res.Batches {
		var be *BatchError
		if errors.As(res.Batches[i].Err, &be) {
			res.Failures = append(res.Failures, be)
		}
	}

	c.log.Info("analysis finished",
		slog.Int("scored", progress.ScoredParagraphs),
		slog.Int("failed", progress.FailedParagraphs),
		slog.Int("canceled_batches", len(res.Canceled())),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runBatch submits one batch, retrying transient failures.
func (c *Client) runBatch(ctx context.Context, idx int, batch []Request) BatchResult {
	br := BatchResult{Batch: idx, StableIDs: stableIDs(batch)}
	log := c.log.With(slog.Int("batch", idx+1), slog.Int("paragraphs", len(batch)))

	paragraphs := make([]scoring.Paragraph, len(batch))
	for i, r := range batch {
		paragraphs[i] = scoring.Paragraph{Index: i, Text: r.Text, Dimensions: r.Dimensions}
	}
	timeout := c.cfg.JobTimeout(len(batch))

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
				br.Status, br.Err = BatchCanceled, err
				return br
			}
		}
		br.Attempts = attempt

		poll, err := c.runJob(ctx, paragraphs, timeout)
		if err == nil {
			br.Status = BatchSucceeded
			br.Paragraphs = c.collect(log, batch, poll)
			log.Debug("batch done", slog.Int("attempts", attempt))
			return br
		}
		if ctx.Err() != nil {
			br.Status, br.Err = BatchCanceled, ctx.Err()
			return br
		}

		lastErr = err
		if !scoring.IsTransient(err) {
			log.Warn("batch rejected", slog.String("error", err.Error()))
			br.Status = BatchFailed
			br.Err = &BatchError{Batch: idx, StableIDs: br.StableIDs, Attempts: attempt, Kind: ErrBatchValidation, Err: err}
			return br
		}
		log.Warn("batch attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxRetries+1),
			slog.String("error", err.Error()),
		)
	}

	br.Status = BatchFailed
	br.Err = &BatchError{Batch: idx, StableIDs: br.StableIDs, Attempts: br.Attempts, Kind: ErrBatchTransient, Err: lastErr}
	return br
}

// runJob submits paragraphs and polls until the job finishes or its timeout
// elapses.
func (c *Client) runJob(ctx context.Context, paragraphs []scoring.Paragraph, timeout time.Duration) (*scoring.PollResult, error) {
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timedOut := func(jobID string) error {
		return fmt.Errorf("job %s after %s: %w", jobID, timeout, ErrJobTimeout)
	}

	jobID, err := c.svc.Submit(jobCtx, paragraphs)
	if err != nil {
		if ctx.Err() == nil && jobCtx.Err() != nil {
			return nil, fmt.Errorf("submit after %s: %w", timeout, ErrJobTimeout)
		}
		return nil, fmt.Errorf("submit: %w", err)
	}

	// A job we stop polling before it finishes is abandoned; tell the
	// service so a retry does not run alongside it.
	finished := false
	defer func() {
		if !finished {
			c.abandon(jobID)
		}
	}()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-jobCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, timedOut(jobID)
		case <-ticker.C:
		}

		pr, err := c.svc.Poll(jobCtx, jobID)
		if err != nil {
			if ctx.Err() == nil && jobCtx.Err() != nil {
				return nil, timedOut(jobID)
			}
			return nil, fmt.Errorf("poll %s: %w", jobID, err)
		}

		switch pr.Status {
		case scoring.StatusDone:
			finished = true
			return pr, nil
		case scoring.StatusFailed:
			finished = true
			return nil, fmt.Errorf("job %s: %w: %s", jobID, ErrJobFailed, pr.Error)
		case scoring.StatusPending:
		default:
			return nil, fmt.Errorf("job %s: unexpected status %q", jobID, pr.Status)
		}
	}
}

// abandon cancels a job when the service supports it. It runs after the
// job's own context is done, so it gets a short budget of its own.
func (c *Client) abandon(jobID string) {
	canceler, ok := c.svc.(scoring.Canceler)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := canceler.Cancel(ctx, jobID); err != nil {
		c.log.Debug("cancel abandoned job", slog.String("job", jobID), slog.String("error", err.Error()))
	}
}

// collect maps job results back to stable IDs. Markers are applied here so
// every backend honors them; results are limited to the requested dimensions
// and out-of-range scores are dropped.
func (c *Client) collect(log *slog.Logger, batch []Request, pr *scoring.PollResult) []ParagraphResult {
	out := make([]ParagraphResult, len(batch))
	for i, r := range batch {
		dims := scoring.ApplyMarkers(r.Text, pr.Results[i])
		pres := ParagraphResult{StableID: r.StableID}
		for _, d := range r.Dimensions {
			dr, ok := dims[d]
			if !ok {
				log.Warn("dimension missing from results", slog.Int64("paragraph", r.StableID), slog.String("dimension", string(d)))
				continue
			}
			if dr.Score < models.MinScore || dr.Score > models.MaxScore {
				log.Warn("score out of range", slog.Int64("paragraph", r.StableID), slog.String("dimension", string(d)), slog.Int("score", dr.Score))
				continue
			}
			pres.Scores = append(pres.Scores, models.ScoreValue{Dimension: d, Score: dr.Score, Comment: dr.Text})
		}
		out[i] = pres
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
