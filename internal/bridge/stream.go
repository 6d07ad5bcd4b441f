package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // bridge auth is the token, not origin
}

// streamEventBuffer is the size of the bounded channel between the
// executor and the websocket writer; a full buffer blocks the executor's
// sends. Dropping text_chunk events is decided by pumpEvents.
const streamEventBuffer = 64

// backpressureWindow is how long a single websocket write may stall
// before later text_chunk events start being dropped.
const backpressureWindow = 2 * time.Second

func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	var req types.ExecuteRequest
	if err := json.Unmarshal([]byte(r.URL.Query().Get("request")), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !s.checkAuth(req.AuthToken) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.deadlineFor(req))
	defer cancel()

	// Cancellation source 2 of spec §5: a client-initiated stream cancel
	// (detected via a read error/close frame) kills the underlying
	// worker by cancelling ctx.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := make(chan types.StreamEvent, streamEventBuffer)
	done := make(chan error, 1)
	go func() {
		done <- s.executor.ExecuteStream(ctx, req, events)
	}()

	s.pumpEvents(conn, ctx, events, done)
}

// pumpEvents writes events to the client, applying backpressure: if the
// write stalls for longer than backpressureWindow it starts dropping
// text_chunk events (never status_update/final_result) and marks the
// eventual final result truncated.
func (s *Server) pumpEvents(conn *websocket.Conn, ctx context.Context, events <-chan types.StreamEvent, done <-chan error) {
	truncated := false
	stalled := false

	for {
		select {
		case <-ctx.Done():
			s.writeFinal(conn, types.UnaryResult{Success: false, Error: "deadline exceeded"})
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == types.EventChunk && stalled {
				truncated = true
				continue
			}
			if ev.Kind == types.EventFinal && truncated && ev.Final != nil {
				ev.Final.Error = appendTruncationNote(ev.Final.Error)
			}
			writeStart := time.Now()
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if time.Since(writeStart) > backpressureWindow {
				stalled = true
			}
			if ev.Kind == types.EventFinal {
				return
			}
		case err := <-done:
			// The executor has returned: forward what it already queued,
			// and end the stream with a final result of our own if it
			// queued none.
			for {
				select {
				case ev := <-events:
					if ev.Kind == types.EventFinal && truncated && ev.Final != nil {
						ev.Final.Error = appendTruncationNote(ev.Final.Error)
					}
					if conn.WriteJSON(ev) != nil || ev.Kind == types.EventFinal {
						return
					}
				default:
					result := types.UnaryResult{Success: false, Error: "stream ended without a result"}
					if err != nil {
						result.Error = err.Error()
					}
					s.writeFinal(conn, result)
					return
				}
			}
		}
	}
}

func (s *Server) writeFinal(conn *websocket.Conn, result types.UnaryResult) {
	_ = conn.WriteJSON(types.StreamEvent{Kind: types.EventFinal, Final: &result})
}

func appendTruncationNote(existing string) string {
	note := "output truncated due to backpressure"
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
