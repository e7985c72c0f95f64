// Package clock provides the engine's single source of time and conversation
// identifiers, so every other package depends on an interface instead of
// calling time.Now/uuid.New directly.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock is a monotonic time source. Tests substitute FixedClock for it.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant, advanced explicitly
// by tests that need to simulate TTL expiry or anti-loop counters.
type Fixed struct {
	at time.Time
}

// NewFixed returns a Fixed clock starting at at.
func NewFixed(at time.Time) *Fixed {
	return &Fixed{at: at}
}

func (f *Fixed) Now() time.Time { return f.at }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.at = f.at.Add(d)
}

// IDs generates conversation- and event-scoped identifiers.
type IDs struct{}

// NewConversationID returns a fresh opaque conversation identifier.
func (IDs) NewConversationID() string {
	return uuid.NewString()
}

// NewEventID returns a fresh opaque audit event identifier.
func (IDs) NewEventID() string {
	return uuid.NewString()
}
