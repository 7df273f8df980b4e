package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type submitRequest struct {
	Paragraphs []Paragraph `json:"paragraphs"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPService talks to a remote scoring service over its JSON protocol.
// It does not retry; retry policy belongs to the caller.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPService creates an HTTPService rooted at baseURL
// (e.g. "http://localhost:8080/scoring/v1").
func NewHTTPService(baseURL string, logger *slog.Logger) *HTTPService {
	return &HTTPService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.With("adapter", "scoring-http"),
	}
}

// Submit posts a job and returns its ID.
func (s *HTTPService) Submit(ctx context.Context, paragraphs []Paragraph) (string, error) {
	body, err := json.Marshal(submitRequest{Paragraphs: paragraphs})
	if err != nil {
		return "", fmt.Errorf("scoring: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("scoring: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.log.DebugContext(ctx, "scoring submit", slog.Int("paragraphs", len(paragraphs)))

	var out submitResponse
	if err := s.do(req, &out, http.StatusAccepted, http.StatusOK); err != nil {
		return "", fmt.Errorf("scoring: submit: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("scoring: submit: empty job id")
	}
	return out.JobID, nil
}

// Poll fetches the current state of a job.
func (s *HTTPService) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("scoring: create request: %w", err)
	}

	var out PollResult
	if err := s.do(req, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("scoring: poll %s: %w", jobID, err)
	}

	s.log.DebugContext(ctx, "scoring poll", slog.String("job", jobID), slog.String("status", string(out.Status)))
	return &out, nil
}

// Cancel asks the service to drop a job.
func (s *HTTPService) Cancel(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("scoring: create request: %w", err)
	}
	if err := s.do(req, nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("scoring: cancel %s: %w", jobID, err)
	}
	return nil
}

func (s *HTTPService) do(req *http.Request, out any, okCodes ...int) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	for _, code := range okCodes {
		if resp.StatusCode == code {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode json: %w", err)
			}
			return nil
		}
	}

	msg := strings.TrimSpace(string(data))
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
