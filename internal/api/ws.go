package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/joescharf/draftscore/internal/analysis"
	"github.com/joescharf/draftscore/internal/review"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket message types to client.
const (
	wsMsgProgress = "progress"
	wsMsgResult   = "result"
	wsMsgError    = "error"
)

// wsMessage is the envelope for every message sent on the analysis stream.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsProgress struct {
	CompletedBatches int `json:"completed_batches"`
	TotalBatches     int `json:"total_batches"`
	ScoredParagraphs int `json:"scored_paragraphs"`
	FailedParagraphs int `json:"failed_paragraphs"`
	TotalParagraphs  int `json:"total_paragraphs"`
}

// analyzeWS runs an analysis and streams a progress message per completed
// batch, then one result or error message. Closing the socket cancels the
// run; batches that already finished stay applied.
func (s *Server) analyzeWS(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// The client sends nothing; a read error means it went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	res, err := s.svc.Analyze(ctx, r.PathValue("id"), review.AnalyzeOptions{
		Force: force,
		OnProgress: func(p analysis.Progress) {
			s.send(conn, wsMsgProgress, wsProgress{
				CompletedBatches: p.CompletedBatches,
				TotalBatches:     p.TotalBatches,
				ScoredParagraphs: p.ScoredParagraphs,
				FailedParagraphs: p.FailedParagraphs,
				TotalParagraphs:  p.TotalParagraphs,
			})
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.send(conn, wsMsgError, map[string]string{"message": err.Error()})
	} else {
		s.send(conn, wsMsgResult, newAnalyzeResponse(res))
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) send(conn *websocket.Conn, msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("ws marshal", "error", err)
		return
	}
	if err := conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		s.log.Debug("ws write", "error", err)
	}
}
