// Package recovery implements the per-context failure policy: counting
// repeated misunderstandings, deciding when a context has exhausted its
// budget, and picking the right graduated clarification prompt.
package recovery

import (
	"deskagent/internal/catalog"
	"deskagent/internal/session"
)

// MaxContextFails is the per-context ceiling at which the caller must
// escalate rather than keep re-asking.
const MaxContextFails = session.MaxContextFails

// Increment bumps both the named context's counter and the conversation's
// global recovery counter, returning the new per-context value. The two
// counters move together: a context-specific failure is also evidence the
// conversation as a whole is struggling.
func Increment(s *session.Session, context string) int {
	p := s.Counters.ForContext(context)
	if p == nil {
		return 0
	}
	*p++
	s.Counters.GlobalRecoveryFails++
	return *p
}

// ShouldEscalate reports whether the named context has hit its failure
// ceiling and the caller should route to the intent router instead of
// re-asking again.
func ShouldEscalate(s *session.Session, context string) bool {
	p := s.Counters.ForContext(context)
	if p == nil {
		return false
	}
	return *p >= MaxContextFails
}

// ClarificationFor returns the prompt key for the level-failCount
// clarification in the given context, or ok=false once the catalog has no
// more graduated levels to offer (the caller should escalate instead).
func ClarificationFor(cat *catalog.Catalog, context string, failCount int) (string, bool) {
	key := catalog.ClarificationKey(context, failCount)
	if !cat.Has(key) {
		return "", false
	}
	return key, true
}
