// Package chatws is the web-chat channel adapter: one gorilla/websocket
// connection per browser session, one goroutine per connection, each
// inbound text frame handed straight to engine.HandleMessage.
package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"deskagent/internal/engine"
	"deskagent/internal/httpserver"
	"deskagent/internal/session"
)

const (
	maxMessageBytes = 8 * 1024
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingInterval    = (pongWait * 9) / 10
)

// InboundFrame is the JSON payload of one caller text frame.
type InboundFrame struct {
	Text     string `json:"text"`
	CallerID string `json:"caller_id"`
}

// OutboundFrame mirrors engine.Event for the wire.
type OutboundFrame struct {
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	NewState string `json:"new_state"`
}

// Handler upgrades HTTP requests to WebSocket connections and pumps each
// one through a shared engine.Engine.
type Handler struct {
	engine   *engine.Engine
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds a Handler bound to e. The upgrader accepts any origin,
// which is appropriate for a reference adapter but not for production use
// behind a public load balancer.
func NewHandler(e *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: e,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Mount registers the chat route on r under /chat/{tenantID}/{convID}.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/chat/{tenantID}/{convID}", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	convID := chi.URLParam(r, "convID")
	if tenantID == "" || convID == "" {
		httpserver.WriteJSONError(w, http.StatusBadRequest, "bad_request", "tenantID and convID are required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("chatws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	go h.pump(conn, tenantID, convID)
}

// pump owns one connection end to end: read loop plus a sibling ping
// goroutine, both torn down together when either the socket or the engine
// gives up.
func (h *Handler) pump(conn *websocket.Conn, tenantID, convID string) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go h.pingLoop(conn, done)
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("chatws: connection closed unexpectedly",
					slog.String("conv_id", convID), slog.String("error", err.Error()))
			}
			return
		}

		var in InboundFrame
		text := string(raw)
		callerID := ""
		if err := json.Unmarshal(raw, &in); err == nil && in.Text != "" {
			text = in.Text
			callerID = in.CallerID
		}

		events, err := h.engine.HandleMessage(context.Background(), tenantID, convID, text, session.Text, callerID)
		if err != nil {
			h.log.Error("chatws: handle message failed",
				slog.String("tenant_id", tenantID), slog.String("conv_id", convID), slog.String("error", err.Error()))
			return
		}

		if err := h.writeEvents(conn, events); err != nil {
			return
		}
	}
}

func (h *Handler) writeEvents(conn *websocket.Conn, events []engine.Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(OutboundFrame{Kind: string(ev.Kind), Text: ev.Text, NewState: string(ev.NewState)})
		if err != nil {
			h.log.Error("chatws: encode frame failed", slog.String("error", err.Error()))
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
