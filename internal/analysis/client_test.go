package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/scoring"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		BatchSize:           5,
		Concurrency:         3,
		PollInterval:        time.Millisecond,
		BaseTimeout:         time.Second,
		PerParagraphTimeout: 10 * time.Millisecond,
		MaxRetries:          2,
		RetryDelay:          time.Millisecond,
	}
}

func makeRequests(n int, dims ...models.Dimension) []Request {
	if len(dims) == 0 {
		dims = models.AllDimensions
	}
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = Request{StableID: int64(i + 1), Text: fmt.Sprintf("Paragraph number %d.", i), Dimensions: dims}
	}
	return reqs
}

// fakeService delegates to a MarkerService and lets tests inject failures
// keyed by the first paragraph text of each job.
type fakeService struct {
	inner *scoring.MarkerService

	// submitErr returns an error for the given attempt of the batch starting with first.
	submitErr func(first string, attempt int) error
	// stuck keeps jobs starting with first pending forever.
	stuck func(first string) bool
	// failStatus makes the job report failed for the given attempt.
	failStatus func(first string, attempt int) bool
	onSubmit   func(first string)

	mu       sync.Mutex
	attempts map[string]int
	sizes    []int
	jobFirst map[string]string
	jobTry   map[string]int
	canceled []string
}

func newFakeService() *fakeService {
	return &fakeService{
		inner:    scoring.NewMarkerService(1),
		attempts: make(map[string]int),
		jobFirst: make(map[string]string),
		jobTry:   make(map[string]int),
	}
}

func (f *fakeService) Submit(ctx context.Context, ps []scoring.Paragraph) (string, error) {
	first := ps[0].Text
	f.mu.Lock()
	f.attempts[first]++
	attempt := f.attempts[first]
	f.sizes = append(f.sizes, len(ps))
	f.mu.Unlock()

	if f.onSubmit != nil {
		f.onSubmit(first)
	}
	if f.submitErr != nil {
		if err := f.submitErr(first, attempt); err != nil {
			return "", err
		}
	}
	id, err := f.inner.Submit(ctx, ps)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.jobFirst[id] = first
	f.jobTry[id] = attempt
	f.mu.Unlock()
	return id, nil
}

func (f *fakeService) Poll(ctx context.Context, id string) (*scoring.PollResult, error) {
	f.mu.Lock()
	first, attempt := f.jobFirst[id], f.jobTry[id]
	f.mu.Unlock()

	if f.stuck != nil && f.stuck(first) {
		return &scoring.PollResult{Status: scoring.StatusPending}, nil
	}
	if f.failStatus != nil && f.failStatus(first, attempt) {
		return &scoring.PollResult{Status: scoring.StatusFailed, Error: "worker crashed"}, nil
	}
	return f.inner.Poll(ctx, id)
}

func (f *fakeService) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	f.canceled = append(f.canceled, id)
	f.mu.Unlock()
	return f.inner.Cancel(ctx, id)
}

func (f *fakeService) canceledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

func (f *fakeService) attemptsFor(first string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[first]
}

func newTestClient(t *testing.T, svc scoring.Service, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(svc, cfg, newTestLogger())
	require.NoError(t, err)
	return c
}

func TestSplitBatches(t *testing.T) {
	batches := splitBatches(makeRequests(12), 5)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 2)

	assert.Empty(t, splitBatches(nil, 5))
	assert.Len(t, splitBatches(makeRequests(5), 5), 1)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := Config{}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "poll interval")

	_, err = NewClient(newFakeService(), bad, newTestLogger())
	assert.Error(t, err)
}

func TestConfig_JobTimeout(t *testing.T) {
	cfg := Config{BaseTimeout: 30 * time.Second, PerParagraphTimeout: 5 * time.Second}
	assert.Equal(t, 30*time.Second, cfg.JobTimeout(0))
	assert.Equal(t, 55*time.Second, cfg.JobTimeout(5))
	assert.Equal(t, 40*time.Second, cfg.JobTimeout(2))
}

func TestAnalyze_AllBatchesSucceed(t *testing.T) {
	svc := newFakeService()
	c := newTestClient(t, svc, testConfig())

	var progress []Progress
	var batches []BatchResult
	res, err := c.Analyze(context.Background(), makeRequests(12), Handlers{
		OnBatch:    func(b BatchResult) { batches = append(batches, b) },
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Len(t, res.Scores, 12)
	assert.Empty(t, res.Failures)
	assert.ElementsMatch(t, []int{5, 5, 2}, svc.sizes)

	require.Len(t, progress, 3)
	require.Len(t, batches, 3)
	for i, p := range progress {
		assert.Equal(t, i+1, p.CompletedBatches)
		assert.Equal(t, 3, p.TotalBatches)
		assert.Equal(t, 12, p.TotalParagraphs)
	}
	last := progress[2]
	assert.Equal(t, 12, last.ScoredParagraphs)
	assert.Equal(t, 0, last.FailedParagraphs)

	for _, scores := range res.Scores {
		assert.Len(t, scores, 4)
	}
}

func TestAnalyze_BatchExhaustsRetries(t *testing.T) {
	svc := newFakeService()
	// The second batch starts with paragraph 5.
	svc.submitErr = func(first string, attempt int) error {
		if first == "Paragraph number 5." {
			return &scoring.StatusError{Code: 503, Message: "unavailable"}
		}
		return nil
	}
	cfg := testConfig()
	c := newTestClient(t, svc, cfg)

	var progress []Progress
	res, err := c.Analyze(context.Background(), makeRequests(12), Handlers{
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Len(t, res.Scores, 7)
	for _, id := range []int64{1, 2, 3, 4, 5, 11, 12} {
		assert.Contains(t, res.Scores, id)
	}

	require.Len(t, res.Failures, 1)
	be := res.Failures[0]
	assert.Equal(t, 1, be.Batch)
	assert.Equal(t, []int64{6, 7, 8, 9, 10}, be.StableIDs)
	assert.Equal(t, cfg.MaxRetries+1, be.Attempts)
	assert.ErrorIs(t, be, ErrBatchTransient)
	assert.Equal(t, cfg.MaxRetries+1, svc.attemptsFor("Paragraph number 5."))

	var se *scoring.StatusError
	require.True(t, errors.As(be, &se))
	assert.Equal(t, 503, se.Code)

	assert.Equal(t, BatchSucceeded, res.Batches[0].Status)
	assert.Equal(t, BatchFailed, res.Batches[1].Status)
	assert.Equal(t, BatchSucceeded, res.Batches[2].Status)

	require.Len(t, progress, 3)
	assert.Equal(t, 7, progress[2].ScoredParagraphs)
	assert.Equal(t, 5, progress[2].FailedParagraphs)
}

func TestAnalyze_ValidationNotRetried(t *testing.T) {
	svc := newFakeService()
	svc.submitErr = func(first string, attempt int) error {
		return &scoring.StatusError{Code: 422, Message: "paragraph too long"}
	}
	c := newTestClient(t, svc, testConfig())

	res, err := c.Analyze(context.Background(), makeRequests(3), Handlers{})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0], ErrBatchValidation)
	assert.Equal(t, 1, res.Failures[0].Attempts)
	assert.Equal(t, 1, svc.attemptsFor("Paragraph number 0."))
	assert.Empty(t, res.Scores)
}

func TestAnalyze_TransientThenSuccess(t *testing.T) {
	svc := newFakeService()
	svc.submitErr = func(first string, attempt int) error {
		if attempt == 1 {
			return errors.New("connection reset by peer")
		}
		return nil
	}
	svc.failStatus = func(first string, attempt int) bool { return attempt == 2 }
	c := newTestClient(t, svc, testConfig())

	res, err := c.Analyze(context.Background(), makeRequests(2), Handlers{})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Len(t, res.Scores, 2)
	assert.Equal(t, 3, res.Batches[0].Attempts)
}

func TestAnalyze_JobTimeout(t *testing.T) {
	svc := newFakeService()
	svc.stuck = func(string) bool { return true }
	cfg := testConfig()
	cfg.BaseTimeout = 20 * time.Millisecond
	cfg.PerParagraphTimeout = time.Millisecond
	cfg.MaxRetries = 1
	c := newTestClient(t, svc, cfg)

	res, err := c.Analyze(context.Background(), makeRequests(2), Handlers{})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0], ErrBatchTransient)
	assert.ErrorIs(t, res.Failures[0], ErrJobTimeout)
	assert.Equal(t, 2, res.Failures[0].Attempts)

	// Both timed-out attempts were canceled, so nothing is left running.
	assert.Len(t, svc.canceledJobs(), 2)
	assert.Equal(t, 0, svc.inner.Pending())
}

func TestAnalyze_FinishedJobsAreNotCanceled(t *testing.T) {
	svc := newFakeService()
	c := newTestClient(t, svc, testConfig())

	_, err := c.Analyze(context.Background(), makeRequests(7), Handlers{})
	require.NoError(t, err)
	assert.Empty(t, svc.canceledJobs())
	assert.Equal(t, 0, svc.inner.Pending())
}

func TestAnalyze_Cancellation(t *testing.T) {
	svc := newFakeService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Batch 2 hangs; cancel as soon as it is submitted.
	svc.stuck = func(first string) bool { return first == "Paragraph number 5." }
	svc.onSubmit = func(first string) {
		if first == "Paragraph number 5." {
			cancel()
		}
	}
	cfg := testConfig()
	cfg.Concurrency = 1
	c := newTestClient(t, svc, cfg)

	var progress []Progress
	res, err := c.Analyze(ctx, makeRequests(12), Handlers{
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Equal(t, BatchSucceeded, res.Batches[0].Status)
	assert.Equal(t, BatchCanceled, res.Batches[1].Status)
	assert.Equal(t, BatchCanceled, res.Batches[2].Status)
	assert.Equal(t, []int{1, 2}, res.Canceled())
	assert.Len(t, res.Scores, 5)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 0, svc.attemptsFor("Paragraph number 10."), "no batch starts after cancellation")
	require.Len(t, progress, 1)
	assert.Len(t, svc.canceledJobs(), 1, "the hanging job is canceled")
	assert.Equal(t, 0, svc.inner.Pending())
}

func TestAnalyze_SkipsParagraphsWithoutDimensions(t *testing.T) {
	svc := newFakeService()
	c := newTestClient(t, svc, testConfig())

	reqs := makeRequests(3)
	reqs[1].Dimensions = nil

	res, err := c.Analyze(context.Background(), reqs, Handlers{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.Skipped)
	assert.Len(t, res.Scores, 2)
	assert.ElementsMatch(t, []int{2}, svc.sizes)
}

func TestAnalyze_MarkersFilteredToRequestedDimensions(t *testing.T) {
	svc := newFakeService()
	c := newTestClient(t, svc, testConfig())

	res, err := c.Analyze(context.Background(), []Request{{
		StableID:   9,
		Text:       "Para one text. LOW_A MID_G",
		Dimensions: []models.Dimension{models.DimensionGrounding},
	}}, Handlers{})
	require.NoError(t, err)
	require.Len(t, res.Scores[9], 1)
	assert.Equal(t, models.DimensionGrounding, res.Scores[9][0].Dimension)
	assert.Equal(t, 3, res.Scores[9][0].Score)
}

// staticService returns fixed results, bypassing the marker backend.
type staticService struct {
	results map[int]map[models.Dimension]scoring.DimensionResult
}

func (s *staticService) Submit(ctx context.Context, ps []scoring.Paragraph) (string, error) {
	return "job", nil
}

func (s *staticService) Poll(ctx context.Context, id string) (*scoring.PollResult, error) {
	return &scoring.PollResult{Status: scoring.StatusDone, Results: s.results}, nil
}

func TestAnalyze_MarkersOverrideAnyBackend(t *testing.T) {
	svc := &staticService{results: map[int]map[models.Dimension]scoring.DimensionResult{
		0: {
			models.DimensionActionability: {Score: 5, Text: "fine"},
			models.DimensionHelpfulness:   {Score: 9, Text: "out of range"},
		},
	}}
	c := newTestClient(t, svc, testConfig())

	res, err := c.Analyze(context.Background(), []Request{{
		StableID:   1,
		Text:       "Do the thing. LOW_A",
		Dimensions: []models.Dimension{models.DimensionActionability, models.DimensionHelpfulness},
	}}, Handlers{})
	require.NoError(t, err)
	require.Len(t, res.Scores[1], 1)
	assert.Equal(t, 1, res.Scores[1][0].Score)
}

func TestAnalyze_Empty(t *testing.T) {
	c := newTestClient(t, newFakeService(), testConfig())
	res, err := c.Analyze(context.Background(), nil, Handlers{})
	require.NoError(t, err)
	assert.Empty(t, res.Batches)
	assert.Empty(t, res.Scores)
}
