package scoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/draftscore/internal/models"
)

// MarkerService is a deterministic in-process backend. It never touches the
// network: scores come from a word-count baseline overridden by test markers.
// Each job reports pending for a configurable number of polls before it
// completes, so callers exercise their real polling loop.
type MarkerService struct {
	pendingPolls int
	ttl          time.Duration
	now          func() time.Time

	mu   sync.Mutex
	jobs map[string]*markerJob
}

type markerJob struct {
	paragraphs []Paragraph
	polls      int
	submitted  time.Time
}

// NewMarkerService creates a MarkerService whose jobs stay pending for
// pendingPolls polls. Jobs that are never polled to completion are dropped
// after DefaultJobTTL.
func NewMarkerService(pendingPolls int) *MarkerService {
	if pendingPolls < 0 {
		pendingPolls = 0
	}
	return &MarkerService{
		pendingPolls: pendingPolls,
		ttl:          DefaultJobTTL,
		now:          time.Now,
		jobs:         make(map[string]*markerJob),
	}
}

// Submit registers a job.
func (s *MarkerService) Submit(ctx context.Context, paragraphs []Paragraph) (string, error) {
	if err := validateParagraphs(paragraphs); err != nil {
		return "", err
	}
	id := uuid.NewString()
	cp := make([]Paragraph, len(paragraphs))
	copy(cp, paragraphs)

	s.mu.Lock()
	s.sweepLocked()
	s.jobs[id] = &markerJob{paragraphs: cp, submitted: s.now()}
	s.mu.Unlock()
	return id, nil
}

// Poll advances the job by one poll. Completed jobs are forgotten once their
// results have been returned.
func (s *MarkerService) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}
	job.polls++
	if job.polls <= s.pendingPolls {
		return &PollResult{Status: StatusPending}, nil
	}
	delete(s.jobs, jobID)

	results := make(map[int]map[models.Dimension]DimensionResult, len(job.paragraphs))
	for _, p := range job.paragraphs {
		results[p.Index] = ApplyMarkers(p.Text, baseline(p))
	}
	return &PollResult{Status: StatusDone, Results: results}, nil
}

// Cancel forgets a job.
func (s *MarkerService) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return jobNotFound(jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// Pending returns the number of jobs still held.
func (s *MarkerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *MarkerService) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, job := range s.jobs {
		if job.submitted.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

// baseline scores short paragraphs a 3 and longer ones a 4 on every
// requested dimension.
func baseline(p Paragraph) map[models.Dimension]DimensionResult {
	score := 4
	if len(strings.Fields(p.Text)) < 8 {
		score = 3
	}
	out := make(map[models.Dimension]DimensionResult, len(p.Dimensions))
	for _, d := range p.Dimensions {
		out[d] = DimensionResult{Score: score, Text: cannedComment(d, score)}
	}
	return out
}
