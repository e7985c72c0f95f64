package recovery

import (
	"testing"
	"time"

	"deskagent/internal/catalog"
	"deskagent/internal/session"
)

func newTestSession() *session.Session {
	return session.New("tenant", "conv", session.Text, time.Now())
}

func TestIncrementBumpsContextAndGlobal(t *testing.T) {
	s := newTestSession()
	n := Increment(s, "name")
	if n != 1 {
		t.Fatalf("Increment returned %d, want 1", n)
	}
	if s.Counters.NameFails != 1 {
		t.Error("expected NameFails incremented")
	}
	if s.Counters.GlobalRecoveryFails != 1 {
		t.Error("expected GlobalRecoveryFails incremented alongside context counter")
	}
}

func TestShouldEscalateAtCeiling(t *testing.T) {
	s := newTestSession()
	for i := 0; i < MaxContextFails-1; i++ {
		Increment(s, "slot_choice")
	}
	if ShouldEscalate(s, "slot_choice") {
		t.Fatal("should not escalate before ceiling")
	}
	Increment(s, "slot_choice")
	if !ShouldEscalate(s, "slot_choice") {
		t.Fatal("should escalate at ceiling")
	}
}

func TestClarificationForGraduatesThenExhausts(t *testing.T) {
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	if _, ok := ClarificationFor(cat, "name", 1); !ok {
		t.Error("expected level 1 clarification to exist")
	}
	if _, ok := ClarificationFor(cat, "name", 2); !ok {
		t.Error("expected level 2 clarification to exist")
	}
	if _, ok := ClarificationFor(cat, "name", 3); ok {
		t.Error("expected level 3 to be exhausted, caller should escalate")
	}
}

func TestIncrementUnknownContextIsNoop(t *testing.T) {
	s := newTestSession()
	if n := Increment(s, "bogus"); n != 0 {
		t.Errorf("Increment(bogus) = %d, want 0", n)
	}
	if s.Counters.GlobalRecoveryFails != 0 {
		t.Error("unknown context should not bump the global counter")
	}
}
