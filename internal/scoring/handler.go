package scoring

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// NewHandler exposes svc over the scoring HTTP protocol:
//
//	POST /jobs        {"paragraphs":[...]}  -> 202 {"job_id":"..."}
//	GET  /jobs/{id}                          -> 200 PollResult
//	DELETE /jobs/{id}                        -> 204 (when svc is a Canceler)
//
// Mount it under a prefix with http.StripPrefix.
func NewHandler(svc Service, logger *slog.Logger) http.Handler {
	h := &handler{svc: svc, log: logger.With("component", "scoring-handler")}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", h.submit)
	mux.HandleFunc("GET /jobs/{id}", h.poll)
	mux.HandleFunc("DELETE /jobs/{id}", h.cancel)
	return mux
}

type handler struct {
	svc Service
	log *slog.Logger
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	id, err := h.svc.Submit(r.Context(), req.Paragraphs)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id})
}

func (h *handler) poll(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Poll(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.svc.(Canceler)
	if !ok {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "jobs cannot be canceled"})
		return
	}
	if err := c.Cancel(r.Context(), r.PathValue("id")); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) writeErr(w http.ResponseWriter, err error) {
	var se *StatusError
	if errors.As(err, &se) {
		writeJSON(w, se.Code, errorResponse{Error: se.Message})
		return
	}
	h.log.Error("scoring backend failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
