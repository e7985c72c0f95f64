package faq

import (
	"context"
	"testing"
)

func TestLexicalMatcherScoresBestEntry(t *testing.T) {
	m := NewLexicalMatcher()
	m.Seed("tenant-a", []Entry{
		{ID: "hours", Question: "Quels sont vos horaires d'ouverture ?", Answer: "Nous ouvrons de 9h à 18h."},
		{ID: "parking", Question: "Y a-t-il un parking disponible ?", Answer: "Oui, un parking gratuit est disponible."},
	})

	match, err := m.Match(context.Background(), "tenant-a", "Quels sont vos horaires")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match.ID != "hours" {
		t.Fatalf("ID = %q, want hours", match.ID)
	}
	if match.Score <= 0 {
		t.Errorf("Score = %v, want > 0", match.Score)
	}
}

func TestLexicalMatcherUnseededTenantIsZeroScore(t *testing.T) {
	m := NewLexicalMatcher()
	match, err := m.Match(context.Background(), "unknown", "horaires")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match.Score != 0 || match.ID != "" {
		t.Errorf("expected zero-value match, got %+v", match)
	}
}

func TestLexicalMatcherIsolatesTenants(t *testing.T) {
	m := NewLexicalMatcher()
	m.Seed("tenant-a", []Entry{{ID: "hours", Question: "horaires ouverture", Answer: "9h-18h"}})
	m.Seed("tenant-b", []Entry{{ID: "prices", Question: "tarifs consultation", Answer: "50 euros"}})

	match, _ := m.Match(context.Background(), "tenant-b", "horaires ouverture")
	if match.ID == "hours" {
		t.Error("tenant-b must not see tenant-a's entries")
	}
}
