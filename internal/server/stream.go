package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShayCichocki/pairline/internal/events"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxReadBytes = 4096
)

// wsFrame is one websocket text message.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// streamSSE handles GET /api/events. The stream ends when the client goes
// away; events produced later stay buffered for the next consumer.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}
	consumer, err := sess.Events().Attach()
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer consumer.Detach()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream needs a flushable writer", "error", err)
		return
	}

	ctx, cancel := s.streamContext(r)
	defer cancel()

	logger := s.logger.With("session_id", sess.ID, "transport", "sse")
	logger.Debug("stream attached")
	err = events.Pump(ctx, consumer, s.cfg.KeepAlive, func(e events.Event) error {
		if err := events.WriteSSE(w, e); err != nil {
			return err
		}
		return rc.Flush()
	})
	logger.Debug("stream detached", "reason", err)
}

// streamWebSocket handles GET /api/ws. Events are pushed as JSON frames and
// keep-alives as pings. Messages from the client are ignored.
func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}
	consumer, err := sess.Events().Attach()
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer consumer.Detach()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Warn("websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxReadBytes)

	ctx, cancel := s.streamContext(r)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger := s.logger.With("session_id", sess.ID, "transport", "websocket")
	logger.Debug("stream attached")
	err = events.Pump(ctx, consumer, s.cfg.KeepAlive, func(e events.Event) error {
		deadline := time.Now().Add(wsWriteWait)
		if e.Type == events.TypeKeepAlive {
			return conn.WriteControl(websocket.PingMessage, nil, deadline)
		}
		payload, err := e.Payload()
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(deadline)
		return conn.WriteJSON(wsFrame{Event: string(e.Type), Data: payload})
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	logger.Debug("stream detached", "error", err)
}
