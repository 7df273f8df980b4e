package scoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/draftscore/internal/llm"
	"github.com/joescharf/draftscore/internal/models"
)

// Scorer scores paragraphs synchronously. *llm.Client satisfies it.
type Scorer interface {
	ScoreParagraphs(ctx context.Context, paragraphs []llm.ParagraphInput) ([]llm.ParagraphScores, error)
}

// LLMService turns a synchronous Scorer into the asynchronous job protocol:
// Submit starts the model call in the background and Poll reports it.
// Each job runs under its own context, canceled when the job is read,
// canceled, or outlives its TTL.
type LLMService struct {
	scorer Scorer
	log    *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*llmJob
}

type llmJob struct {
	result    *PollResult
	cancel    context.CancelFunc
	submitted time.Time
}

// NewLLMService creates an LLMService. Call Close to abandon in-flight jobs.
func NewLLMService(scorer Scorer, logger *slog.Logger) *LLMService {
	ctx, cancel := context.WithCancel(context.Background())
	return &LLMService{
		scorer: scorer,
		log:    logger.With("adapter", "scoring-llm"),
		ttl:    DefaultJobTTL,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*llmJob),
	}
}

// Submit starts a background scoring call and returns its job ID.
func (s *LLMService) Submit(ctx context.Context, paragraphs []Paragraph) (string, error) {
	if err := validateParagraphs(paragraphs); err != nil {
		return "", err
	}
	id := uuid.NewString()
	jobCtx, cancel := context.WithTimeout(s.ctx, s.ttl)

	s.mu.Lock()
	s.sweepLocked()
	s.jobs[id] = &llmJob{result: &PollResult{Status: StatusPending}, cancel: cancel, submitted: s.now()}
	s.mu.Unlock()

	go s.run(jobCtx, id, paragraphs)
	return id, nil
}

func (s *LLMService) run(ctx context.Context, id string, paragraphs []Paragraph) {
	inputs := make([]llm.ParagraphInput, len(paragraphs))
	for i, p := range paragraphs {
		dims := make([]string, len(p.Dimensions))
		for j, d := range p.Dimensions {
			dims[j] = string(d)
		}
		inputs[i] = llm.ParagraphInput{Index: p.Index, Text: p.Text, Dimensions: dims}
	}

	scored, err := s.scorer.ScoreParagraphs(ctx, inputs)

	res := &PollResult{Status: StatusDone}
	if err != nil {
		res = &PollResult{Status: StatusFailed, Error: err.Error()}
	} else {
		res.Results = make(map[int]map[models.Dimension]DimensionResult, len(scored))
		for _, ps := range scored {
			dims := make(map[models.Dimension]DimensionResult, len(ps.Scores))
			for name, ds := range ps.Scores {
				d, err := models.ParseDimension(name)
				if err != nil {
					continue
				}
				dims[d] = DimensionResult{Score: ds.Score, Text: ds.Comment}
			}
			res.Results[ps.Index] = dims
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		// Canceled or expired while the model was working.
		return
	}
	if err != nil {
		s.log.Warn("llm scoring failed", "job", id, "error", err)
	}
	job.result = res
}

// Poll reports a job's state. Finished jobs are forgotten after being read.
func (s *LLMService) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}
	if job.result.Status != StatusPending {
		s.dropLocked(jobID)
	}
	return job.result, nil
}

// Cancel stops a job's model call and forgets the job.
func (s *LLMService) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return jobNotFound(jobID)
	}
	s.dropLocked(jobID)
	return nil
}

// Pending returns the number of jobs still held.
func (s *LLMService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close cancels in-flight model calls.
func (s *LLMService) Close() {
	s.cancel()
}

func (s *LLMService) dropLocked(jobID string) {
	if job, ok := s.jobs[jobID]; ok {
		job.cancel()
		delete(s.jobs, jobID)
	}
}

func (s *LLMService) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, job := range s.jobs {
		if job.submitted.Before(cutoff) {
			s.log.Debug("dropping expired job", "job", id)
			s.dropLocked(id)
		}
	}
}
