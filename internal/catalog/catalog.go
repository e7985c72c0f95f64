// Package catalog is the single source of truth for every user-visible
// string the engine emits. No package outside catalog may construct
// user-facing text; handlers only ever look a key up and substitute
// placeholders, never concatenate fragments (this is what makes P5 —
// prompt provenance — checkable).
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Channel selects which phrasing variant a prompt renders as.
type Channel string

const (
	Voice Channel = "voice"
	Text  Channel = "text"
)

// entry is the on-disk shape of one prompt: two phrasings plus a flag used
// to decide whether emitting it counts as "asking a question".
type entry struct {
	Voice        string `yaml:"voice"`
	Text         string `yaml:"text"`
	AsksQuestion bool   `yaml:"asks_question"`
}

// Catalog is an immutable, read-only lookup built once at process start and
// shared across every session without locking.
type Catalog struct {
	entries map[string]entry
}

// Load parses the embedded prompts.yaml into a Catalog.
func Load() (*Catalog, error) {
	var raw map[string]entry
	if err := yaml.Unmarshal(promptsYAML, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse prompts.yaml: %w", err)
	}
	return &Catalog{entries: raw}, nil
}

// ErrUnknownKey is returned by Render for a key absent from the catalog.
type ErrUnknownKey struct{ Key string }

func (e *ErrUnknownKey) Error() string { return fmt.Sprintf("catalog: unknown prompt key %q", e.Key) }

// Render looks up key, selects the phrasing for channel, and substitutes
// named placeholders ("{first_name}" etc.) from vars. It never falls back to
// ad-hoc string construction: an unknown key is a programming error
// surfaced to the caller, who is expected to route it through the
// safe-reply barrier rather than let it reach the user verbatim.
func (c *Catalog) Render(key string, channel Channel, vars map[string]string) (string, error) {
	e, ok := c.entries[key]
	if !ok {
		return "", &ErrUnknownKey{Key: key}
	}

	template := e.Text
	if channel == Voice {
		template = e.Voice
	}
	if template == "" {
		template = e.Text
	}

	return substitute(template, vars), nil
}

// AsksQuestion reports whether the prompt at key is, by catalog
// declaration, a question — the authoritative signal for counting
// consecutive questions, never inferred by sniffing rendered text for a
// trailing "?".
func (c *Catalog) AsksQuestion(key string) bool {
	e, ok := c.entries[key]
	return ok && e.AsksQuestion
}

// Has reports whether key exists, used by callers that build graduated
// clarification keys dynamically (context + fail level) and need to know
// whether the level is exhausted.
func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

func substitute(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// ClarificationKey builds the catalog key for a graduated clarification
// prompt for the given recovery context and 1-based fail level.
func ClarificationKey(context string, level int) string {
	return fmt.Sprintf("clarify.%s.%d", context, level)
}
