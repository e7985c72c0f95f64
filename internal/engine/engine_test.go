package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"deskagent/internal/audit"
	"deskagent/internal/catalog"
	"deskagent/internal/clock"
	"deskagent/internal/faq"
	"deskagent/internal/fsm"
	"deskagent/internal/session"
)

func newTestEngine(t *testing.T) (*Engine, *fakeCalendar, *audit.MemorySink, *session.MemoryStore, *clock.Fixed) {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	cal := newFakeCalendar()
	sink := audit.NewMemorySink()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	store := session.NewMemoryStore(session.SessionTTL)
	matcher := faq.NewLexicalMatcher()
	matcher.Seed("tenant1", []faq.Entry{
		{ID: "hours", Question: "quels sont vos horaires", Answer: "Nous sommes ouverts de neuf heures a dix-huit heures."},
	})
	e := New(Deps{
		Store:    store,
		Catalog:  cat,
		Calendar: cal,
		FAQ:      matcher,
		Audit:    sink,
		Clock:    clk,
		Config:   DefaultConfig(),
	})
	return e, cal, sink, store, clk
}

func send(t *testing.T, e *Engine, tenant, conv, text string) []Event {
	t.Helper()
	evs, err := e.HandleMessage(context.Background(), tenant, conv, text, session.Text, "")
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	if len(evs) == 0 {
		t.Fatalf("HandleMessage(%q) returned no events", text)
	}
	return evs
}

func last(evs []Event) Event { return evs[len(evs)-1] }

// Scenario: a full happy-path booking end to end.
func TestHappyPathBooking(t *testing.T) {
	e, cal, _, _, _ := newTestEngine(t)

	send(t, e, "tenant1", "conv-booking", "je voudrais un rendez-vous")
	send(t, e, "tenant1", "conv-booking", "Jean Dupont")
	send(t, e, "tenant1", "conv-booking", "Consultation generale")
	proposed := send(t, e, "tenant1", "conv-booking", "le matin")
	if last(proposed).NewState != fsm.QualifContact {
		t.Fatalf("expected QUALIF_CONTACT after preference, got %s", last(proposed).NewState)
	}
	slots := send(t, e, "tenant1", "conv-booking", "0612345678")
	if last(slots).NewState != fsm.WaitConfirm {
		t.Fatalf("expected WAIT_CONFIRM after contact, got %s", last(slots).NewState)
	}

	final := send(t, e, "tenant1", "conv-booking", "un")
	ev := last(final)
	if ev.NewState != fsm.Confirmed {
		t.Fatalf("expected CONFIRMED, got %s (%s)", ev.NewState, ev.Text)
	}
	if !strings.Contains(ev.Text, "Jean") {
		t.Fatalf("confirmation should greet by first name, got %q", ev.Text)
	}
	if _, ok := cal.bookings["Jean Dupont"]; !ok {
		t.Fatal("expected booking recorded in calendar backend")
	}

	// Terminal gate: any further message just sees the closed notice.
	closed := send(t, e, "tenant1", "conv-booking", "encore un message")
	if last(closed).NewState != fsm.Confirmed {
		t.Fatalf("terminal gate should not change state, got %s", last(closed).NewState)
	}
}

// Scenario: a brand-new session's first turn opens with the tenant greeting
// ahead of whatever the caller's first message triggers.
func TestFirstTurnEmitsGreeting(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	evs := send(t, e, "tenant1", "conv-greet", "je voudrais un rendez-vous")
	if len(evs) < 2 {
		t.Fatalf("expected the greeting plus the booking reply, got %+v", evs)
	}
	greeting := evs[0]
	if !strings.Contains(greeting.Text, "notre cabinet") {
		t.Fatalf("expected the default business name in the greeting, got %q", greeting.Text)
	}
	if last(evs).NewState != fsm.QualifName {
		t.Fatalf("expected QUALIF_NAME after the booking reply, got %s", last(evs).NewState)
	}

	// A second message on the same conversation is not a new session.
	again := send(t, e, "tenant1", "conv-greet", "Jean Dupont")
	if strings.Contains(last(again).Text, "notre cabinet") {
		t.Fatalf("did not expect the greeting to repeat on a later turn, got %+v", again)
	}
}

// Scenario: FAQ answered, then caller pivots into booking from FAQ_ANSWERED.
func TestFAQThenBooking(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	answer := send(t, e, "tenant1", "conv-faq", "quels sont vos horaires")
	ev := last(answer)
	if ev.NewState != fsm.FAQAnswered {
		t.Fatalf("expected FAQ_ANSWERED, got %s", ev.NewState)
	}
	if !strings.Contains(ev.Text, "neuf heures") {
		t.Fatalf("expected the seeded answer, got %q", ev.Text)
	}

	pivot := send(t, e, "tenant1", "conv-faq", "oui, je voudrais un rendez-vous")
	if last(pivot).NewState != fsm.QualifName {
		t.Fatalf("expected QUALIF_NAME after pivoting to booking, got %s", last(pivot).NewState)
	}
}

// Scenario: cancel an existing booking by name.
func TestCancelFlow(t *testing.T) {
	e, cal, _, _, _ := newTestEngine(t)
	cal.bookings["Marie Curie"] = session.SlotOffer{Label: "jeudi 11h"}

	askName := send(t, e, "tenant1", "conv-cancel", "je voudrais annuler mon rendez-vous")
	if last(askName).NewState != fsm.CancelName {
		t.Fatalf("strong CANCEL intent should jump straight to CANCEL_NAME, got %s", last(askName).NewState)
	}

	confirm := send(t, e, "tenant1", "conv-cancel", "Marie Curie")
	if last(confirm).NewState != fsm.CancelConfirm {
		t.Fatalf("expected CANCEL_CONFIRM once the name is found, got %s", last(confirm).NewState)
	}

	done := send(t, e, "tenant1", "conv-cancel", "oui")
	if last(done).NewState != fsm.Clarify {
		t.Fatalf("expected CLARIFY after a confirmed cancellation, got %s", last(done).NewState)
	}
	if _, ok := cal.bookings["Marie Curie"]; ok {
		t.Fatal("booking should have been cancelled")
	}
}

// Scenario: modify an existing booking, which re-collects a preference and
// re-books before confirming.
func TestModifyFlow(t *testing.T) {
	e, cal, _, _, _ := newTestEngine(t)
	cal.bookings["Paul Martin"] = session.SlotOffer{Label: "lundi 8h"}

	send(t, e, "tenant1", "conv-modify", "je voudrais modifier mon rendez-vous")
	send(t, e, "tenant1", "conv-modify", "Paul Martin")
	ackAndAsk := send(t, e, "tenant1", "conv-modify", "oui")
	if len(ackAndAsk) != 2 {
		t.Fatalf("expected an ack + next question pair, got %d events", len(ackAndAsk))
	}
	if last(ackAndAsk).NewState != fsm.QualifPref {
		t.Fatalf("expected QUALIF_PREF to re-collect a preference, got %s", last(ackAndAsk).NewState)
	}

	send(t, e, "tenant1", "conv-modify", "apres-midi")
	slots := send(t, e, "tenant1", "conv-modify", "0698765432")
	if last(slots).NewState != fsm.WaitConfirm {
		t.Fatalf("expected WAIT_CONFIRM for the new slot, got %s", last(slots).NewState)
	}
	final := send(t, e, "tenant1", "conv-modify", "deux")
	if last(final).NewState != fsm.Confirmed {
		t.Fatalf("expected CONFIRMED for the re-booked slot, got %s", last(final).NewState)
	}
}

// Scenario: the intent router menu, reached via repeated empty input, then
// a clean choice of option 2.
func TestIntentRouterFromEmptyInputThenCancelOption(t *testing.T) {
	e, cal, _, _, _ := newTestEngine(t)
	cal.bookings["Alice Martin"] = session.SlotOffer{Label: "vendredi 16h"}

	send(t, e, "tenant1", "conv-router", "   ")
	send(t, e, "tenant1", "conv-router", "")
	routed := send(t, e, "tenant1", "conv-router", "")
	if last(routed).NewState != fsm.IntentRouter {
		t.Fatalf("expected INTENT_ROUTER after repeated empty input, got %s", last(routed).NewState)
	}

	chosen := send(t, e, "tenant1", "conv-router", "deux")
	if last(chosen).NewState != fsm.CancelName {
		t.Fatalf("expected CANCEL_NAME from router option 2, got %s", last(chosen).NewState)
	}
}

// Scenario: a slow or unreachable calendar backend routes to TRANSFERRED
// instead of leaving the caller stuck.
func TestCalendarUnavailableTransfers(t *testing.T) {
	e, cal, _, _, _ := newTestEngine(t)
	cal.failFree = true

	send(t, e, "tenant1", "conv-down", "je voudrais un rendez-vous")
	send(t, e, "tenant1", "conv-down", "Luc Blanc")
	send(t, e, "tenant1", "conv-down", "Detartrage")
	final := send(t, e, "tenant1", "conv-down", "le matin")
	mid := send(t, e, "tenant1", "conv-down", "0611223344")
	_ = final
	if last(mid).NewState != fsm.Transferred {
		t.Fatalf("expected TRANSFERRED when the calendar backend is down, got %s", last(mid).NewState)
	}
}

// P2/anti-loop: a session already at the turn ceiling gets routed to the
// intent router on its very next message rather than dispatched normally.
func TestAntiLoopGuard(t *testing.T) {
	e, _, _, store, clk := newTestEngine(t)
	sess := session.New("tenant1", "conv-loop", session.Text, clk.Now())
	sess.Counters.TurnCount = session.MaxTurns
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	evs := send(t, e, "tenant1", "conv-loop", "bonjour")
	if last(evs).NewState != fsm.IntentRouter {
		t.Fatalf("expected INTENT_ROUTER once MaxTurns is exceeded, got %s", last(evs).NewState)
	}
}

// P8: a session idle past the TTL is reset and the caller sees the
// session-expired notice instead of an answer to their actual message.
func TestSessionExpiryResets(t *testing.T) {
	e, _, _, store, clk := newTestEngine(t)
	sess := session.New("tenant1", "conv-expired", session.Text, clk.Now())
	sess.State = fsm.QualifMotif
	sess.Qualification.Name = "Old Caller"
	sess.LastSeenAt = clk.Now().Add(-session.SessionTTL - time.Minute)
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	evs := send(t, e, "tenant1", "conv-expired", "Consultation")
	ev := last(evs)
	if ev.NewState != fsm.Start {
		t.Fatalf("expected a fresh START after expiry, got %s", ev.NewState)
	}
	if !strings.Contains(ev.Text, "expir") {
		t.Fatalf("expected the session-expired notice, got %q", ev.Text)
	}
}

// P6: a strong intent (CANCEL) short-circuits an in-progress booking flow.
func TestStrongIntentOverride(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	send(t, e, "tenant1", "conv-override", "je voudrais un rendez-vous")
	send(t, e, "tenant1", "conv-override", "Sophie Leroy")
	overridden := send(t, e, "tenant1", "conv-override", "en fait annulez tout")
	if last(overridden).NewState != fsm.CancelName {
		t.Fatalf("CANCEL should preempt QUALIF_MOTIF, got %s", last(overridden).NewState)
	}
}

// P1: the safe-reply barrier never lets an empty event slice or blank text
// leave the engine.
func TestSafeReplyBarrierNeverEmpty(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	sess := session.New("tenant1", "conv-barrier", session.Text, time.Now())

	filled := e.safeReplyBarrier(sess, nil)
	if len(filled) != 1 || filled[0].Text == "" {
		t.Fatalf("expected a non-empty fallback event, got %+v", filled)
	}

	withBlank := e.safeReplyBarrier(sess, []Event{{Kind: KindFinal, Text: "", NewState: fsm.Start}})
	if withBlank[0].Text == "" {
		t.Fatalf("expected the blank event's text to be backfilled")
	}
}

// P3: the FSM whitelist rejects transitions not explicitly granted.
func TestFSMWhitelistRejectsArbitraryJumps(t *testing.T) {
	if fsm.CanTransition(fsm.Start, fsm.Confirmed) {
		t.Fatal("START -> CONFIRMED should never be whitelisted")
	}
	if fsm.CanTransition(fsm.Confirmed, fsm.Start) {
		t.Fatal("CONFIRMED is terminal, no transition should be whitelisted out of it")
	}
}

// P7: the per-conversation lock is stable for a given key and distinct
// across keys, so unrelated conversations never contend.
func TestLockStripingPerConversation(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	a1 := e.lockFor("tenant1", "conv-a")
	a2 := e.lockFor("tenant1", "conv-a")
	b := e.lockFor("tenant1", "conv-b")
	if a1 != a2 {
		t.Fatal("expected the same mutex for repeated lookups of the same conversation")
	}
	if a1 == b {
		t.Fatal("expected distinct mutexes for distinct conversations")
	}
}
