// Package session defines the per-conversation state record and the store
// interface the engine uses to load, mutate, and persist it. Sessions are
// the only mutable state in the engine; everything else (guards, intent
// detection, the prompt catalog) is pure.
package session

import (
	"time"

	"deskagent/internal/fsm"
)

// Channel is the surface a conversation arrived through; the prompt catalog
// uses it to pick voice vs text phrasing.
type Channel string

const (
	Voice Channel = "voice"
	Text  Channel = "text"
)

// MaxTurns bounds how many messages a single conversation may exchange
// before the anti-loop guard forces a stabilisation detour.
const MaxTurns = 25

// MaxConsecutiveQuestions bounds how many agent turns in a row may ask the
// caller something before the dialogue is judged incoherent.
const MaxConsecutiveQuestions = 7

// MaxGlobalRecoveryFails bounds the conversation-wide recovery counter.
const MaxGlobalRecoveryFails = 3

// MaxCorrections bounds how many times a caller may say "wait, that's
// wrong" before the engine gives up replaying and reroutes.
const MaxCorrections = 3

// MaxEmptyMessages bounds consecutive blank turns before rerouting.
const MaxEmptyMessages = 3

// MaxContextFails bounds any single per-context recovery counter
// (slot_choice, name, phone, preference, contact_confirm).
const MaxContextFails = 3

// MaxHistoryTurns is the cap on retained history entries (FIFO eviction).
const MaxHistoryTurns = 10

// SessionTTL is the inactivity window after which a session is considered
// expired and is reset on the next message.
const SessionTTL = 15 * time.Minute

// Role identifies the speaker of a history turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one entry of a session's bounded message history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Qualification holds the caller-supplied booking details, each optional
// until collected.
type Qualification struct {
	Name        string
	Motif       string
	Preference  string
	Contact     string
	ContactType string
}

// SlotOffer is one of up to three concrete appointment propositions
// presented while the session sits in WAIT_CONFIRM or CONTACT_CONFIRM.
type SlotOffer struct {
	Index   int
	StartTS time.Time
	Label   string
}

// Counters groups every bounded recovery counter carried by a session. All
// fields are non-negative and are reset together via Session.Reset or the
// intent-router entry sequence; the engine also zeroes
// ConsecutiveQuestions, EmptyMessageCount and FAQMissFails on its own.
type Counters struct {
	TurnCount            int
	ConsecutiveQuestions int
	GlobalRecoveryFails  int
	CorrectionCount      int
	EmptyMessageCount    int

	SlotChoiceFails     int
	NameFails           int
	PhoneFails          int
	PreferenceFails     int
	ContactConfirmFails int

	// GeneralClarifyFails and FAQMissFails are not among the five named
	// recovery contexts in the data model but follow the same
	// increment/clarify/escalate shape: the former escalates straight to
	// TRANSFERRED (clarify.general.*), the latter on the second miss
	// (faq.miss.1 is the only re-ask).
	GeneralClarifyFails int
	FAQMissFails        int
}

// ForContext returns a pointer to the counter for a named recovery context,
// or nil if the context tag is unrecognised. Keeping this central means
// increment/check logic never duplicates the context-name switch.
func (c *Counters) ForContext(context string) *int {
	switch context {
	case "slot_choice":
		return &c.SlotChoiceFails
	case "name":
		return &c.NameFails
	case "phone":
		return &c.PhoneFails
	case "preference":
		return &c.PreferenceFails
	case "contact_confirm":
		return &c.ContactConfirmFails
	case "general":
		return &c.GeneralClarifyFails
	case "faq":
		return &c.FAQMissFails
	default:
		return nil
	}
}

// Session is the central per-conversation entity, keyed by (TenantID,
// ConvID) in the store.
type Session struct {
	TenantID string
	ConvID   string

	State   fsm.State
	Channel Channel

	Qualification Qualification
	PendingSlots  []SlotOffer
	CallerID      string

	History           []Turn
	LastQuestionAsked string
	LastIntent        string

	Counters Counters

	LastSeenAt time.Time
	CreatedAt  time.Time
}

// New creates a fresh session in the START state for a given key.
func New(tenantID, convID string, channel Channel, now time.Time) *Session {
	return &Session{
		TenantID:   tenantID,
		ConvID:     convID,
		State:      fsm.Start,
		Channel:    channel,
		CreatedAt:  now,
		LastSeenAt: now,
	}
}

// AppendHistory records a turn, evicting the oldest entry first once the
// history is at capacity (FIFO, per the session's bounded-history
// invariant).
func (s *Session) AppendHistory(role Role, text string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: at})
	if len(s.History) > MaxHistoryTurns {
		s.History = s.History[len(s.History)-MaxHistoryTurns:]
	}
}

// Reset clears every recovery counter, called exactly at session start and
// on entry to the intent-router stabilisation state. It never touches
// qualification data collected so far.
func (s *Session) Reset() {
	s.Counters = Counters{}
}

// ClearForIntentRouter implements the intent-router entry sequence's data
// side-effects: reset counters, drop the replay buffer and any pending
// slot offers (a stale offer must never be confirmable from a menu turn).
func (s *Session) ClearForIntentRouter() {
	s.Reset()
	s.LastQuestionAsked = ""
	s.PendingSlots = nil
}

// IsExpired reports whether the session has been inactive longer than ttl
// as of `now`.
func (s *Session) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastSeenAt) > ttl
}

// Touch updates LastSeenAt to the given time.
func (s *Session) Touch(now time.Time) {
	s.LastSeenAt = now
}

// ResetExpired reinitialises the session to a fresh START conversation after
// a TTL lapse, preserving only its store key and channel. Per P8, the
// caller's next message after the gap sees the session-expired notice
// instead of whatever reply its content would otherwise have produced.
func (s *Session) ResetExpired(now time.Time) {
	*s = *New(s.TenantID, s.ConvID, s.Channel, now)
}
