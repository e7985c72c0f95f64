package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deskagent/internal/entities"
	"deskagent/internal/guards"
	"deskagent/internal/session"

	"github.com/google/uuid"
)

// RedisFallback is the local fallback calendar store the engine books
// against when the primary backend is unreachable. It generates a small
// deterministic set of candidate slots per preference and records bookings
// in a per-tenant redis hash keyed by folded caller name, since the
// fallback's job is "stay usable for a few bookings until the primary
// comes back", not replicate the primary's full scheduling logic.
type RedisFallback struct {
	client *redis.Client
}

// NewRedisFallback wraps an existing redis client. The caller owns the
// client's lifecycle (creation, auth, Close).
func NewRedisFallback(client *redis.Client) *RedisFallback {
	return &RedisFallback{client: client}
}

func bookingsKey(tenantID string) string {
	return fmt.Sprintf("deskagent:bookings:%s", tenantID)
}

type storedBooking struct {
	SlotLabel string    `json:"slot_label"`
	StartTS   time.Time `json:"start_ts"`
}

// FreeSlots synthesises up to max candidate slots for the next business
// days matching preference. It never contacts the primary backend.
func (r *RedisFallback) FreeSlots(ctx context.Context, tenantID string, preference entities.TimePreference, max int) ([]session.SlotOffer, error) {
	if max <= 0 || max > 3 {
		max = 3
	}
	hour := 9
	if preference == entities.Afternoon {
		hour = 14
	}

	now := time.Now()
	offers := make([]session.SlotOffer, 0, max)
	for i := 1; len(offers) < max; i++ {
		day := now.AddDate(0, 0, i)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
		offers = append(offers, session.SlotOffer{
			Index:   len(offers) + 1,
			StartTS: start,
			Label:   start.Format("Monday 15h04"),
		})
	}
	return offers, nil
}

// Book records a booking for the folded qualification name, refusing if
// the same slot label is already held by someone else.
func (r *RedisFallback) Book(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (BookResult, error) {
	key := bookingsKey(tenantID)
	existing, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return BookResult{Status: BookUnavailable}, fmt.Errorf("redis fallback HGetAll: %w", err)
	}
	for _, raw := range existing {
		var b storedBooking
		if err := json.Unmarshal([]byte(raw), &b); err == nil && b.SlotLabel == slot.Label {
			return BookResult{Status: BookTaken}, nil
		}
	}

	field := guards.Fold(q.Name)
	payload, err := json.Marshal(storedBooking{SlotLabel: slot.Label, StartTS: slot.StartTS})
	if err != nil {
		return BookResult{Status: BookUnavailable}, fmt.Errorf("marshal booking: %w", err)
	}
	if err := r.client.HSet(ctx, key, field, string(payload)).Err(); err != nil {
		return BookResult{Status: BookUnavailable}, fmt.Errorf("redis fallback HSet: %w", err)
	}
	return BookResult{Status: BookOK, EventID: uuid.NewString()}, nil
}

// Cancel removes the caller's fallback booking, if any.
func (r *RedisFallback) Cancel(ctx context.Context, tenantID, identifyingName string) (LookupResult, error) {
	key := bookingsKey(tenantID)
	field := guards.Fold(identifyingName)
	raw, err := r.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("redis fallback HGet: %w", err)
	}
	var b storedBooking
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return LookupResult{}, fmt.Errorf("decode stored booking: %w", err)
	}
	if err := r.client.HDel(ctx, key, field).Err(); err != nil {
		return LookupResult{}, fmt.Errorf("redis fallback HDel: %w", err)
	}
	return LookupResult{Status: LookupOK, SlotLabel: b.SlotLabel}, nil
}

// Find looks up the caller's fallback booking without removing it.
func (r *RedisFallback) Find(ctx context.Context, tenantID, identifyingName string) (LookupResult, error) {
	key := bookingsKey(tenantID)
	field := guards.Fold(identifyingName)
	raw, err := r.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("redis fallback HGet: %w", err)
	}
	var b storedBooking
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return LookupResult{}, fmt.Errorf("decode stored booking: %w", err)
	}
	return LookupResult{Status: LookupOK, SlotLabel: b.SlotLabel}, nil
}
