// Package calendarhttp is the reference calendar.Backend: it speaks a small
// JSON contract over HTTP to whatever clinic scheduling system a tenant has
// wired up, using a bounded-timeout client and retry policy so a flaky
// upstream degrades to a local fallback instead of hanging a turn.
package calendarhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"deskagent/internal/calendar"
	"deskagent/internal/entities"
	"deskagent/internal/retry"
	"deskagent/internal/session"
	"deskagent/internal/transport"
)

// Config points the backend at one tenant-agnostic calendar service; the
// tenant ID travels in the path of every request.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Backend is the HTTP-backed calendar.Backend.
type Backend struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	log     *slog.Logger
}

// New builds a Backend from cfg, defaulting Timeout to calendar.CallDeadline
// when unset.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = calendar.CallDeadline
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 2
	policy.BaseDelay = 150 * time.Millisecond
	policy.MaxDelay = 500 * time.Millisecond
	return &Backend{
		baseURL: cfg.BaseURL,
		client:  transport.NewHTTPClient(timeout),
		policy:  policy,
		log:     logger,
	}
}

type slotDTO struct {
	Index   int       `json:"index"`
	StartTS time.Time `json:"start_ts"`
	Label   string    `json:"label"`
}

type freeSlotsResponse struct {
	Slots []slotDTO `json:"slots"`
}

// FreeSlots calls GET /v1/tenants/{tenant}/slots?preference=&max=.
func (b *Backend) FreeSlots(ctx context.Context, tenantID string, preference entities.TimePreference, max int) ([]session.SlotOffer, error) {
	u := fmt.Sprintf("%s/v1/tenants/%s/slots?preference=%s&max=%d",
		b.baseURL, url.PathEscape(tenantID), url.QueryEscape(string(preference)), max)

	var parsed freeSlotsResponse
	if err := b.doJSON(ctx, http.MethodGet, u, nil, &parsed); err != nil {
		return nil, err
	}
	offers := make([]session.SlotOffer, 0, len(parsed.Slots))
	for _, s := range parsed.Slots {
		offers = append(offers, session.SlotOffer{Index: s.Index, StartTS: s.StartTS, Label: s.Label})
	}
	return offers, nil
}

type bookRequest struct {
	Slot        slotDTO `json:"slot"`
	Name        string  `json:"name"`
	Motif       string  `json:"motif"`
	Preference  string  `json:"preference"`
	Contact     string  `json:"contact"`
	ContactType string  `json:"contact_type"`
}

type bookResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

// Book calls POST /v1/tenants/{tenant}/bookings.
func (b *Backend) Book(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (calendar.BookResult, error) {
	u := fmt.Sprintf("%s/v1/tenants/%s/bookings", b.baseURL, url.PathEscape(tenantID))
	body := bookRequest{
		Slot:        slotDTO{Index: slot.Index, StartTS: slot.StartTS, Label: slot.Label},
		Name:        q.Name,
		Motif:       q.Motif,
		Preference:  q.Preference,
		Contact:     q.Contact,
		ContactType: q.ContactType,
	}

	var parsed bookResponse
	if err := b.doJSON(ctx, http.MethodPost, u, body, &parsed); err != nil {
		return calendar.BookResult{}, err
	}
	status, ok := bookStatusFrom(parsed.Status)
	if !ok {
		return calendar.BookResult{}, fmt.Errorf("calendarhttp: unrecognised booking status %q", parsed.Status)
	}
	return calendar.BookResult{Status: status, EventID: parsed.EventID}, nil
}

func bookStatusFrom(raw string) (calendar.BookStatus, bool) {
	switch calendar.BookStatus(raw) {
	case calendar.BookOK, calendar.BookTaken, calendar.BookUnavailable:
		return calendar.BookStatus(raw), true
	default:
		return "", false
	}
}

type lookupRequest struct {
	Name string `json:"name"`
}

type lookupResponse struct {
	Status    string `json:"status"`
	SlotLabel string `json:"slot_label"`
}

// Cancel calls POST /v1/tenants/{tenant}/cancellations.
func (b *Backend) Cancel(ctx context.Context, tenantID, identifyingName string) (calendar.LookupResult, error) {
	u := fmt.Sprintf("%s/v1/tenants/%s/cancellations", b.baseURL, url.PathEscape(tenantID))
	return b.lookupCall(ctx, u, identifyingName)
}

// Find calls POST /v1/tenants/{tenant}/appointments/lookup. A GET with a
// path segment would be more RESTful, but names can contain characters
// that don't round-trip cleanly through a path, so lookups are POSTed like
// cancellations.
func (b *Backend) Find(ctx context.Context, tenantID, identifyingName string) (calendar.LookupResult, error) {
	u := fmt.Sprintf("%s/v1/tenants/%s/appointments/lookup", b.baseURL, url.PathEscape(tenantID))
	return b.lookupCall(ctx, u, identifyingName)
}

func (b *Backend) lookupCall(ctx context.Context, u, name string) (calendar.LookupResult, error) {
	var parsed lookupResponse
	if err := b.doJSON(ctx, http.MethodPost, u, lookupRequest{Name: name}, &parsed); err != nil {
		return calendar.LookupResult{}, err
	}
	switch calendar.LookupStatus(parsed.Status) {
	case calendar.LookupOK:
		return calendar.LookupResult{Status: calendar.LookupOK, SlotLabel: parsed.SlotLabel}, nil
	case calendar.LookupNotFound:
		return calendar.LookupResult{Status: calendar.LookupNotFound}, nil
	default:
		return calendar.LookupResult{}, fmt.Errorf("calendarhttp: unrecognised lookup status %q", parsed.Status)
	}
}

// doJSON executes one retried HTTP round trip, marshalling reqBody (if any)
// and unmarshalling into out on a 2xx response.
func (b *Backend) doJSON(ctx context.Context, method, url string, reqBody, out any) error {
	var payload []byte
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("calendarhttp: marshal request: %w", err)
		}
		payload = encoded
	}

	resp, body, err := retry.DoHTTP(ctx, b.policy, b.log, func(ctx context.Context) (*http.Response, []byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return nil, nil, err
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp, nil, fmt.Errorf("read response: %w", err)
		}
		return resp, respBody, nil
	})
	if err != nil {
		return fmt.Errorf("calendarhttp: %s %s: %w", method, url, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("calendarhttp: %s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("calendarhttp: decode response: %w", err)
	}
	return nil
}
