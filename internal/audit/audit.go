// Package audit records structured, append-only events for every routing
// decision the engine makes, for offline analytics. Writes are best-effort:
// a sink failure is logged and swallowed, never propagated back into the
// conversation pipeline.
package audit

import (
	"context"
	"time"
)

// maxUserMessageChars truncates the stored copy of the caller's utterance;
// the audit log is for diagnostics, not a verbatim transcript.
const maxUserMessageChars = 200

// Event is one append-only audit record.
type Event struct {
	TenantID         string
	ConvID           string
	EventName        string
	PreviousState    string
	Reason           string
	CountersSnapshot map[string]int
	UserMessage      string
	Timestamp        time.Time
}

// NewEvent builds an Event, truncating the stored user message to
// maxUserMessageChars runes.
func NewEvent(tenantID, convID, eventName, previousState, reason string, counters map[string]int, userMessage string, at time.Time) Event {
	runes := []rune(userMessage)
	if len(runes) > maxUserMessageChars {
		userMessage = string(runes[:maxUserMessageChars])
	}
	return Event{
		TenantID:         tenantID,
		ConvID:           convID,
		EventName:        eventName,
		PreviousState:    previousState,
		Reason:           reason,
		CountersSnapshot: counters,
		UserMessage:      userMessage,
		Timestamp:        at,
	}
}

// Sink is the append-only destination for audit events. Implementations
// must tolerate concurrent writers and must never block the pipeline for
// long; Append failures are the sink's own problem to log.
type Sink interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}
