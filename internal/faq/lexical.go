package faq

import (
	"context"
	"sync"

	"github.com/clipperhouse/uax29/v2/words"

	"deskagent/internal/guards"
)

// LexicalMatcher is the reference Matcher: a per-tenant bag-of-words index
// scored by token overlap (Jaccard similarity over folded, tokenized word
// sets). It has no notion of synonyms or stemming — "lexical" is the point,
// a production matcher is expected to do better.
type LexicalMatcher struct {
	mu      sync.RWMutex
	entries map[string][]indexedEntry
}

type indexedEntry struct {
	Entry
	tokens map[string]bool
}

// NewLexicalMatcher creates an empty matcher; seed it per tenant with Seed.
func NewLexicalMatcher() *LexicalMatcher {
	return &LexicalMatcher{entries: make(map[string][]indexedEntry)}
}

// Seed (re)indexes a tenant's FAQ entries, replacing whatever was there.
func (m *LexicalMatcher) Seed(tenantID string, entries []Entry) {
	indexed := make([]indexedEntry, 0, len(entries))
	for _, e := range entries {
		indexed = append(indexed, indexedEntry{Entry: e, tokens: tokenSet(e.Question)})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tenantID] = indexed
}

// Match scores query against every entry seeded for tenantID and returns
// the best one. An empty or unseeded tenant yields a zero-score Match
// (never an error), since "no FAQ configured" is not a failure condition.
func (m *LexicalMatcher) Match(ctx context.Context, tenantID, query string) (Match, error) {
	m.mu.RLock()
	entries := m.entries[tenantID]
	m.mu.RUnlock()

	queryTokens := tokenSet(query)
	best := Match{}
	for _, e := range entries {
		score := jaccard(queryTokens, e.tokens)
		if score > best.Score {
			best = Match{ID: e.ID, Answer: e.Answer, Score: score}
		}
	}
	return best, nil
}

// tokenSet splits text into fold-normalised word tokens using Unicode word
// boundaries (uax29), dropping anything that isn't alphanumeric so
// punctuation never participates in the overlap score.
func tokenSet(text string) map[string]bool {
	folded := guards.Fold(text)
	out := make(map[string]bool)
	seg := words.FromString(folded)
	for seg.Next() {
		tok := seg.Value()
		if !isWordToken(tok) {
			continue
		}
		out[tok] = true
	}
	return out
}

func isWordToken(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasLetter = true
		case r == '-' || r == '\'':
			// allowed inside a token, doesn't count as a letter on its own
		default:
			return false
		}
	}
	return hasLetter
}

// jaccard is |A∩B| / |A∪B|, 0 when both sets are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
