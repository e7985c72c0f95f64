package fsm

import "testing"

func TestCanTransitionWhitelisted(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{Start, QualifName},
		{Start, Clarify},
		{QualifName, QualifPref},
		{WaitConfirm, Confirmed},
		{QualifName, CancelName},
		{WaitConfirm, ModifyName},
		{Clarify, Transferred},
	}
	for _, c := range cases {
		if !CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", c.from, c.to)
		}
	}
}

func TestCanTransitionRejectsUnlisted(t *testing.T) {
	if CanTransition(Start, Confirmed) {
		t.Error("expected START -> CONFIRMED to be rejected")
	}
	if CanTransition(Confirmed, QualifName) {
		t.Error("expected terminal state to reject the wildcard escalation edges")
	}
}

func TestTransitionReturnsError(t *testing.T) {
	_, err := Transition(Start, Confirmed)
	if err == nil {
		t.Fatal("expected error for invalid transition")
	}
	var invalidErr *ErrInvalidTransition
	if !asInvalidTransition(err, &invalidErr) {
		t.Fatalf("expected *ErrInvalidTransition, got %T", err)
	}
}

func asInvalidTransition(err error, target **ErrInvalidTransition) bool {
	e, ok := err.(*ErrInvalidTransition)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestTerminalStates(t *testing.T) {
	if !Confirmed.Terminal() {
		t.Error("CONFIRMED should be terminal")
	}
	if !Transferred.Terminal() {
		t.Error("TRANSFERRED should be terminal")
	}
	if Start.Terminal() {
		t.Error("START should not be terminal")
	}
}
