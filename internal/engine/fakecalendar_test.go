package engine

import (
	"context"
	"fmt"

	"deskagent/internal/calendar"
	"deskagent/internal/entities"
	"deskagent/internal/session"
)

// fakeCalendar is a deterministic in-memory calendar.Backend for tests: a
// fixed set of offers, a tiny name->booking index, and knobs to force
// error/unavailable paths.
type fakeCalendar struct {
	offers   []session.SlotOffer
	bookings map[string]session.SlotOffer
	failFree bool
	failBook calendar.BookStatus
	notFound bool
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		offers: []session.SlotOffer{
			{Index: 1, Label: "mardi 10h"},
			{Index: 2, Label: "mardi 14h"},
			{Index: 3, Label: "mercredi 9h"},
		},
		bookings: make(map[string]session.SlotOffer),
	}
}

func (f *fakeCalendar) FreeSlots(ctx context.Context, tenantID string, pref entities.TimePreference, max int) ([]session.SlotOffer, error) {
	if f.failFree {
		return nil, fmt.Errorf("backend unavailable")
	}
	if max < len(f.offers) {
		return f.offers[:max], nil
	}
	return f.offers, nil
}

func (f *fakeCalendar) Book(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (calendar.BookResult, error) {
	if f.failBook != "" {
		return calendar.BookResult{Status: f.failBook}, nil
	}
	f.bookings[q.Name] = slot
	return calendar.BookResult{Status: calendar.BookOK, EventID: "evt-" + q.Name}, nil
}

func (f *fakeCalendar) Cancel(ctx context.Context, tenantID, name string) (calendar.LookupResult, error) {
	slot, ok := f.bookings[name]
	if !ok {
		return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
	}
	delete(f.bookings, name)
	return calendar.LookupResult{Status: calendar.LookupOK, SlotLabel: slot.Label}, nil
}

func (f *fakeCalendar) Find(ctx context.Context, tenantID, name string) (calendar.LookupResult, error) {
	if f.notFound {
		return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
	}
	slot, ok := f.bookings[name]
	if !ok {
		return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
	}
	return calendar.LookupResult{Status: calendar.LookupOK, SlotLabel: slot.Label}, nil
}
