package httpwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"deskagent/internal/audit"
	"deskagent/internal/calendar"
	"deskagent/internal/catalog"
	"deskagent/internal/clock"
	"deskagent/internal/engine"
	"deskagent/internal/entities"
	"deskagent/internal/session"
)

// noopCalendar always reports no availability; the webhook tests only care
// that a reply comes back, not what the booking flow does with it.
type noopCalendar struct{}

func (noopCalendar) FreeSlots(ctx context.Context, tenantID string, preference entities.TimePreference, max int) ([]session.SlotOffer, error) {
	return nil, nil
}

func (noopCalendar) Book(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (calendar.BookResult, error) {
	return calendar.BookResult{Status: calendar.BookUnavailable}, nil
}

func (noopCalendar) Cancel(ctx context.Context, tenantID, identifyingName string) (calendar.LookupResult, error) {
	return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
}

func (noopCalendar) Find(ctx context.Context, tenantID, identifyingName string) (calendar.LookupResult, error) {
	return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	e := engine.New(engine.Deps{
		Store:    session.NewMemoryStore(session.SessionTTL),
		Catalog:  cat,
		Calendar: noopCalendar{},
		Audit:    audit.NewMemorySink(),
		Clock:    clock.NewFixed(time.Now()),
		Config:   engine.DefaultConfig(),
	})
	return NewHandler(e, nil)
}

func TestWebhookRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	r := chi.NewRouter()
	h.Mount(r)

	body, _ := json.Marshal(InboundMessage{Text: "bonjour", Channel: "text"})
	req := httptest.NewRequest(http.MethodPost, "/webhook/tenant1/conv1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp OutboundResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) == 0 || resp.Events[0].Text == "" {
		t.Fatalf("expected at least one non-empty event, got %+v", resp.Events)
	}
}

func TestWebhookRejectsMissingPathParams(t *testing.T) {
	h := newTestHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("tenantID", "")
	rctx.URLParams.Add("convID", "conv1")
	req := httptest.NewRequest(http.MethodPost, "/webhook//conv1", bytes.NewReader([]byte(`{}`)))
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing tenant id, got %d", rec.Code)
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(t)
	r := chi.NewRouter()
	h.Mount(r)

	req := httptest.NewRequest(http.MethodPost, "/webhook/tenant1/conv1", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}
