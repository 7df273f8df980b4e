package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/resolver"
	"github.com/joescharf/draftscore/internal/review"
	"github.com/joescharf/draftscore/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	svc     *review.Service
	log     *slog.Logger
	scoring http.Handler
}

// NewServer creates a new API server.
func NewServer(svc *review.Service, logger *slog.Logger) *Server {
	return &Server{svc: svc, log: logger.With("component", "api")}
}

// MountScoring serves h under /scoring/v1, so a local scoring backend can
// run in the same process as the API.
func (s *Server) MountScoring(h http.Handler) {
	s.scoring = h
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/reviews", s.listReviews)
	mux.HandleFunc("POST /api/v1/reviews", s.createReview)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)

	mux.HandleFunc("GET /api/v1/reviews/{id}/document", s.getDocument)
	mux.HandleFunc("PUT /api/v1/reviews/{id}/document", s.saveDocument)
	mux.HandleFunc("GET /api/v1/reviews/{id}/feedback", s.getFeedback)

	mux.HandleFunc("POST /api/v1/reviews/{id}/analyze", s.analyze)
	mux.HandleFunc("GET /api/v1/reviews/{id}/analyze/ws", s.analyzeWS)
	mux.HandleFunc("GET /api/v1/reviews/{id}/runs", s.listRuns)

	mux.HandleFunc("GET /api/v1/reviews/{id}/paragraphs/{pid}/versions", s.listVersions)
	mux.HandleFunc("POST /api/v1/reviews/{id}/paragraphs/{pid}/dimensions/{dim}/view", s.markViewed)
	mux.HandleFunc("POST /api/v1/reviews/{id}/paragraphs/{pid}/dimensions/{dim}/dismiss", s.dismiss)

	if s.scoring != nil {
		mux.Handle("/scoring/v1/", http.StripPrefix("/scoring/v1", s.scoring))
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrRetired):
		return http.StatusConflict
	case errors.Is(err, review.ErrEmptyDocument),
		errors.Is(err, review.ErrAmbiguousID),
		errors.Is(err, models.ErrUnknownDimension),
		errors.Is(err, store.ErrInvalidScore):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func paragraphID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("pid"), 10, 64)
	return id, err == nil && id > 0
}

// --- Reviews ---

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.svc.ListReviews(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rev, err := s.svc.CreateReview(r.Context(), body.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// --- Document ---

type documentResponse struct {
	ReviewID   string                 `json:"review_id"`
	Text       string                 `json:"text"`
	Paragraphs []models.LiveParagraph `json:"paragraphs"`
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.Document(r.Context(), rev.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	texts := make([]string, len(doc))
	for i, p := range doc {
		texts[i] = p.Text
	}
	writeJSON(w, http.StatusOK, documentResponse{
		ReviewID:   rev.ID,
		Text:       resolver.JoinParagraphs(texts),
		Paragraphs: doc,
	})
}

func (s *Server) saveDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.svc.Save(r.Context(), r.PathValue("id"), body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.svc.Feedback(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// --- Analysis ---

type analyzeResponse struct {
	Run      *models.AnalysisRun `json:"run"`
	Failures []string            `json:"failures,omitempty"`
	Skipped  []int64             `json:"skipped,omitempty"`
}

func newAnalyzeResponse(res *review.AnalyzeResult) analyzeResponse {
	out := analyzeResponse{Run: res.Run, Skipped: res.Skipped}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	return out
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	res, err := s.svc.Analyze(r.Context(), r.PathValue("id"), review.AnalyzeOptions{Force: body.Force})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalyzeResponse(res))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// --- Paragraphs ---

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	pid, ok := paragraphID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paragraph ID")
		return
	}
	items, err := s.svc.History(r.Context(), r.PathValue("id"), pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusNotFound, "paragraph not found")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) interaction(w http.ResponseWriter, r *http.Request, status string,
	apply func(reviewID string, pid int64, dim models.Dimension) error) {
	pid, ok := paragraphID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paragraph ID")
		return
	}
	dim, err := models.ParseDimension(r.PathValue("dim"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := apply(r.PathValue("id"), pid, dim); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paragraph": pid,
		"dimension": dim,
		"status":    status,
	})
}

func (s *Server) markViewed(w http.ResponseWriter, r *http.Request) {
	s.interaction(w, r, "viewed", func(id string, pid int64, dim models.Dimension) error {
		return s.svc.MarkViewed(r.Context(), id, pid, dim)
	})
}

func (s *Server) dismiss(w http.ResponseWriter, r *http.Request) {
	s.interaction(w, r, "dismissed", func(id string, pid int64, dim models.Dimension) error {
		return s.svc.Dismiss(r.Context(), id, pid, dim)
	})
}
