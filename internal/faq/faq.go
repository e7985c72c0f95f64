// Package faq defines the FAQ matcher contract plus a reference lexical
// implementation so the engine is runnable and testable without a real
// clinic's FAQ index. A production-grade matcher is an external
// collaborator; this package only ships a default for local use.
package faq

import "context"

// Match is the result of scoring a caller's query against one FAQ entry.
type Match struct {
	ID     string
	Answer string
	Score  float64
}

// Matcher is the lexical FAQ matcher contract: score a query against a
// tenant's FAQ entries and return the best candidate, whatever its score.
// Callers compare Score against their own threshold (faq_threshold,
// default 0.80); the matcher itself never judges relevance.
type Matcher interface {
	Match(ctx context.Context, tenantID, query string) (Match, error)
}

// Entry is one FAQ question/answer pair a LexicalMatcher can be seeded
// with.
type Entry struct {
	ID       string
	Question string
	Answer   string
}
