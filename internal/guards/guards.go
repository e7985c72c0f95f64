// Package guards implements the engine's pure input validators. None of
// these functions touch session state; they only ever look at the raw
// utterance and return booleans or cleaned strings.
package guards

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticFold strips combining marks so "être" and "etre" compare equal,
// the same trick the intent detector relies on for fixed-string matching.
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases text and strips diacritics for case/accent-insensitive
// comparisons. It fails open (returns the original lowercase string) if the
// transform itself errors, since guards must never panic or error out.
func Fold(text string) string {
	lower := strings.ToLower(text)
	folded, _, err := transform.String(diacriticFold, lower)
	if err != nil {
		return lower
	}
	return folded
}

// IsEmpty reports whether text is empty or whitespace-only.
func IsEmpty(text string) bool {
	return strings.TrimSpace(text) == ""
}

// IsTooLong reports whether text exceeds maxChars runes.
func IsTooLong(text string, maxChars int) bool {
	return len([]rune(text)) > maxChars
}

// frenchStopwords is a small closed set of very common French function
// words. Their near-total absence from a non-trivial utterance is a strong
// (not certain) signal the message isn't French.
var frenchStopwords = []string{
	"le", "la", "les", "un", "une", "des", "de", "du", "et", "est", "je",
	"vous", "nous", "oui", "non", "pas", "pour", "avec", "bonjour", "merci",
	"rendez", "rdv", "quel", "quelle", "c'est", "ce", "que", "qui",
}

// minWordsForDetection is the word count below which IsFrench makes no
// attempt at detection and reports the message as French.
const minWordsForDetection = 3

// IsFrench returns false only when it is confident the text is not French;
// short or ambiguous input defaults to true. A guard must never silence a
// borderline utterance.
func IsFrench(text string) bool {
	folded := Fold(text)
	words := strings.Fields(folded)
	if len(words) < minWordsForDetection {
		return true
	}

	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"")
		for _, stop := range frenchStopwords {
			if w == stop {
				hits++
				break
			}
		}
	}

	// Confident non-French: a reasonably long message with zero recognizable
	// French function words.
	return hits > 0 || len(words) < 6
}

// spamBlocklist holds literal substrings considered abusive or spammy.
// Matching is deliberately fixed-string, not regex, to avoid regex
// backtracking pitfalls on attacker-controlled input.
var spamBlocklist = []string{
	"http://", "https://", "www.", "viagra", "casino", "crypto airdrop",
}

const maxRepeatedRune = 8

// IsSpamOrAbuse applies a block-list plus a character-class heuristic
// (a long run of the identical rune, e.g. keyboard mashing).
func IsSpamOrAbuse(text string) bool {
	folded := Fold(text)
	for _, term := range spamBlocklist {
		if strings.Contains(folded, term) {
			return true
		}
	}
	return hasLongRepeatedRun(text, maxRepeatedRune)
}

func hasLongRepeatedRun(text string, limit int) bool {
	runes := []rune(text)
	if len(runes) < limit {
		return false
	}
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= limit {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// vocalFillers are tokens a speech-to-text pass commonly inserts that carry
// no semantic content ("euh", "hum", ...).
var vocalFillers = map[string]bool{
	"euh": true, "heu": true, "hum": true, "hmm": true, "bah": true,
	"ben": true, "voila": true, "donc": true, "alors": true,
}

// CleanVocalName strips filler tokens from a dictated name and returns the
// diacritic-folded, lowercased remainder — conservative raw material for
// entities.ExtractName, never a final answer on its own.
func CleanVocalName(text string) string {
	folded := Fold(text)
	fields := strings.Fields(folded)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		trimmed := strings.Trim(f, ".,!?;:")
		if trimmed == "" || vocalFillers[trimmed] {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}
