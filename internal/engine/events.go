package engine

import "deskagent/internal/fsm"

// Kind tags what an emitted event represents to the channel adapter.
type Kind string

const (
	KindPartial  Kind = "partial"
	KindFinal    Kind = "final"
	KindTransfer Kind = "transfer"
)

// Event is one outbound message the adapter renders back to the caller.
// Text is always non-empty by the time HandleMessage returns — the
// safe-reply barrier (step 8 of the pipeline) guarantees it.
type Event struct {
	Kind     Kind
	Text     string
	NewState fsm.State
}

// safeReplyFallbackKey is the catalog key the barrier falls back to when a
// handler's result contains no usable text.
const safeReplyFallbackKey = "system.safe_reply_fallback"
