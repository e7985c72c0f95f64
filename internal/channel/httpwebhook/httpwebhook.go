// Package httpwebhook is a thin voice/telephony-style inbound adapter: one
// JSON POST per caller utterance, translated into engine.HandleMessage and
// back, with no conversation logic of its own.
package httpwebhook

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deskagent/internal/engine"
	"deskagent/internal/httpserver"
	"deskagent/internal/session"
)

// maxBodyBytes bounds the request body read before the engine's own
// max_message_length guard even gets a chance to run.
const maxBodyBytes = 16 * 1024

// InboundMessage is the JSON body of one webhook call.
type InboundMessage struct {
	Text     string `json:"text"`
	Channel  string `json:"channel"`   // "voice" or "text"; defaults to "voice"
	CallerID string `json:"caller_id"` // e.g. ANI/caller number, optional
}

// OutboundEvent mirrors engine.Event for the wire.
type OutboundEvent struct {
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	NewState string `json:"new_state"`
}

// OutboundResponse wraps the events a single call to HandleMessage produced.
type OutboundResponse struct {
	Events []OutboundEvent `json:"events"`
}

// Handler adapts chi-routed HTTP requests onto a shared engine.Engine.
type Handler struct {
	engine *engine.Engine
	log    *slog.Logger
}

// NewHandler builds a Handler bound to e.
func NewHandler(e *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, log: logger}
}

// Mount registers the webhook route on r under /webhook/{tenantID}/{convID}.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/webhook/{tenantID}/{convID}", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	convID := chi.URLParam(r, "convID")
	if tenantID == "" || convID == "" {
		httpserver.WriteJSONError(w, http.StatusBadRequest, "bad_request", "tenantID and convID are required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var in InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpserver.WriteJSONError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	channel := session.Voice
	if in.Channel == string(session.Text) {
		channel = session.Text
	}

	events, err := h.engine.HandleMessage(r.Context(), tenantID, convID, in.Text, channel, in.CallerID)
	if err != nil {
		h.log.Error("webhook: handle message failed",
			slog.String("tenant_id", tenantID),
			slog.String("conv_id", convID),
			slog.String("error", err.Error()))
		httpserver.WriteJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	resp := OutboundResponse{Events: make([]OutboundEvent, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, OutboundEvent{
			Kind:     string(ev.Kind),
			Text:     ev.Text,
			NewState: string(ev.NewState),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("webhook: encode response failed", slog.String("error", err.Error()))
	}
}
