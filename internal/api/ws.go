package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kabrony/VOTSai/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Queries come from the same origins that serve the UI; the
	// deployment fronts this with its own origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is one message on the query websocket: either a state
// transition or the final result.
type wsEvent struct {
	Type   string               `json:"type"` // "state" or "result"
	State  string               `json:"state,omitempty"`
	Detail string               `json:"detail,omitempty"`
	Result *orchestrator.Result `json:"result,omitempty"`
}

// handleQueryWS upgrades the connection, reads one QueryRequest, and
// streams state transitions followed by the final result.
func (s *Server) handleQueryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req QueryRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Debug("websocket read failed", "error", err)
		return
	}
	if req.Query == "" {
		conn.WriteJSON(wsEvent{Type: "error", Detail: "query is required"})
		return
	}

	// State events are produced synchronously by the orchestrator
	// goroutine; forward them from a channel so a slow client can't
	// stall processing.
	events := make(chan wsEvent, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}()

	result := s.orch.Process(r.Context(), orchestrator.Request{
		Query:       req.Query,
		ClientID:    req.ClientID,
		Override:    req.Override,
		WebPriority: req.WebPriority,
		Temperature: req.Temperature,
		Observer: func(state orchestrator.State, detail string) {
			select {
			case events <- wsEvent{Type: "state", State: string(state), Detail: detail}:
			default:
				// Drop progress events rather than block the request.
			}
		},
	})

	events <- wsEvent{Type: "result", Result: result}
	close(events)
	<-done
}
