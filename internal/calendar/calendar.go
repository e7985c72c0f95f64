// Package calendar defines the calendar backend contract the engine calls
// into from WAIT_CONFIRM and the cancel/modify flows, plus a local fallback
// implementation usable when the primary backend is unreachable.
package calendar

import (
	"context"
	"time"

	"deskagent/internal/entities"
	"deskagent/internal/session"
)

// CallDeadline is the hard per-call timeout every backend call must honor;
// a timeout is treated the same as backend-unavailable.
const CallDeadline = 2 * time.Second

// BookStatus is the outcome of an attempted booking.
type BookStatus string

const (
	BookOK          BookStatus = "ok"
	BookTaken       BookStatus = "taken"
	BookUnavailable BookStatus = "unavailable"
)

// BookResult carries the outcome of Book plus the booking ID on success.
type BookResult struct {
	Status  BookStatus
	EventID string
}

// LookupStatus is the outcome of Find/Cancel.
type LookupStatus string

const (
	LookupOK       LookupStatus = "ok"
	LookupNotFound LookupStatus = "not_found"
)

// LookupResult carries the outcome of Find/Cancel.
type LookupResult struct {
	Status    LookupStatus
	SlotLabel string
}

// Backend is the calendar contract: free-slot search, booking, and the
// name-based lookups the cancel/modify flows need. Every method must
// respect the context deadline the caller sets (CallDeadline by default);
// callers treat context.DeadlineExceeded as backend-unavailable.
type Backend interface {
	FreeSlots(ctx context.Context, tenantID string, preference entities.TimePreference, max int) ([]session.SlotOffer, error)
	Book(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (BookResult, error)
	Cancel(ctx context.Context, tenantID, identifyingName string) (LookupResult, error)
	Find(ctx context.Context, tenantID, identifyingName string) (LookupResult, error)
}

// WithDeadline returns a context bound to CallDeadline, plus its cancel
// func, for call sites that don't already have a tighter caller-supplied
// deadline.
func WithDeadline(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, CallDeadline)
}
