package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/draftscore/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPService_RoundTripThroughHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/scoring/v1/", http.StripPrefix("/scoring/v1", NewHandler(NewMarkerService(1), newTestLogger())))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewHTTPService(srv.URL+"/scoring/v1/", newTestLogger())
	ctx := context.Background()

	id, err := client.Submit(ctx, []Paragraph{
		{Index: 0, Text: "Para one text. LOW_A", Dimensions: []models.Dimension{models.DimensionActionability}},
		{Index: 1, Text: "Para two text. MID_V", Dimensions: []models.Dimension{models.DimensionVerifiability}},
	})
	require.NoError(t, err)

	res, err := client.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)

	res, err = client.Poll(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusDone, res.Status)
	assert.Equal(t, 1, res.Results[0][models.DimensionActionability].Score)
	assert.Equal(t, 3, res.Results[1][models.DimensionVerifiability].Score)
}

func TestHTTPService_UnknownJob(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewMarkerService(0), newTestLogger()))
	defer srv.Close()

	_, err := NewHTTPService(srv.URL, newTestLogger()).Poll(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, IsTransient(err))
}

func TestHTTPService_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		message   string
	}{
		{"validation", http.StatusBadRequest, `{"error":"no paragraphs"}`, false, "no paragraphs"},
		{"server error", http.StatusInternalServerError, `boom`, true, "boom"},
		{"unavailable", http.StatusServiceUnavailable, ``, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPService(srv.URL, newTestLogger()).Submit(context.Background(), []Paragraph{{Index: 0, Text: "x"}})
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
			assert.Equal(t, tt.message, se.Message)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestHTTPService_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPService(url, newTestLogger()).Submit(context.Background(), []Paragraph{{Index: 0, Text: "x"}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHandler_InvalidJSON(t *testing.T) {
	h := NewHandler(NewMarkerService(0), newTestLogger())
	req := httptest.NewRequest(http.MethodPost, "/jobs", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPService_CancelThroughHandler(t *testing.T) {
	backend := NewMarkerService(5)
	srv := httptest.NewServer(NewHandler(backend, newTestLogger()))
	defer srv.Close()

	client := NewHTTPService(srv.URL, newTestLogger())
	ctx := context.Background()

	id, err := client.Submit(ctx, []Paragraph{
		{Index: 0, Text: "Pending paragraph.", Dimensions: []models.Dimension{models.DimensionGrounding}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, backend.Pending())

	require.NoError(t, client.Cancel(ctx, id))
	assert.Equal(t, 0, backend.Pending())

	err = client.Cancel(ctx, id)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

// pollOnly implements Service without Canceler.
type pollOnly struct{ Service }

func TestHandler_CancelUnsupported(t *testing.T) {
	srv := httptest.NewServer(NewHandler(pollOnly{NewMarkerService(0)}, newTestLogger()))
	defer srv.Close()

	err := NewHTTPService(srv.URL, newTestLogger()).Cancel(context.Background(), "any")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusMethodNotAllowed, se.Code)
}
