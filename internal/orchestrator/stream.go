package orchestrator

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aiox-platform/gloser/internal/auth"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 4096
	wsWriteTimeout    = 10 * time.Second
	wsMaxMessageSize  = 64 << 10
)

// StreamEvent is one frame sent to a websocket client.
type StreamEvent struct {
	Type      string    `json:"type"` // stage, response, error
	Stage     *Step     `json:"stage,omitempty"`
	Response  *Response `json:"response,omitempty"`
	Message   string    `json:"message,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// Stream upgrades to a websocket. Each text frame is a QueryBody; the
// server answers with one "stage" event per pipeline transition followed by
// a "response" or "error" event. Frames are handled one at a time.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, h.allowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("orchestrator: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	ctx := r.Context()
	write := func(ev StreamEvent) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(ev)
	}

	for {
		var body QueryBody
		if err := conn.ReadJSON(&body); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				slog.Debug("orchestrator: websocket read ended", "error", err)
			}
			return
		}

		body.normalize()
		if err := h.validate.Validate(body); err != nil {
			if write(StreamEvent{Type: "error", Message: err.Error()}) != nil {
				return
			}
			continue
		}

		// Each frame is its own run with its own request id.
		in := h.engine.normalize(Input{
			Query:     body.Query,
			SessionID: body.SessionID,
			PlanOnly:  body.PlanOnly,
		})
		in.SessionKey = auth.SessionKey(ctx, in.SessionID)

		var writeErr error
		resp, err := h.engine.Handle(ctx, in, func(s Step) {
			if writeErr == nil {
				step := s
				writeErr = write(StreamEvent{Type: "stage", Stage: &step, SessionID: in.SessionID})
			}
		})
		if writeErr != nil {
			return
		}
		if err != nil {
			if write(StreamEvent{Type: "error", Message: httpError(err).Error(), SessionID: in.SessionID}) != nil {
				return
			}
			continue
		}
		if write(StreamEvent{Type: "response", Response: &resp, SessionID: in.SessionID}) != nil {
			return
		}
	}
}

// originAllowed accepts same-origin requests, requests without an Origin
// header and any origin in allowed. "*" allows everything.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
