// Package entities implements deterministic, fail-closed parsing of the
// handful of surface entities the engine needs out of a French utterance:
// names, phone numbers (including digit-by-digit dictation), time
// preferences, and slot choices. Every extractor returns "not found" rather
// than guessing when the input is ambiguous.
package entities

import (
	"strconv"
	"strings"

	"deskagent/internal/guards"
)

// TimePreference is the coarse availability window a caller asks for.
type TimePreference string

const (
	Morning     TimePreference = "morning"
	Afternoon   TimePreference = "afternoon"
	Unspecified TimePreference = "unspecified"
)

// ExtractName accepts only well-formed two-token name patterns, optionally
// preceded by "je suis" / "c'est". Anything else is rejected rather than
// guessed at.
func ExtractName(text string) (string, bool) {
	cleaned := guards.CleanVocalName(text)
	if cleaned == "" {
		return "", false
	}

	for _, prefix := range []string{"je suis ", "c'est ", "je m'appelle "} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimPrefix(cleaned, prefix)
			break
		}
	}

	tokens := strings.Fields(cleaned)
	if len(tokens) != 2 {
		return "", false
	}
	for _, t := range tokens {
		if !isAlphaToken(t) {
			return "", false
		}
	}
	return titleCase(tokens[0]) + " " + titleCase(tokens[1]), true
}

func isAlphaToken(t string) bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		if !(r >= 'a' && r <= 'z') && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ExtractPhone normalises a spoken or typed phone number into a bare-digit
// string ("0612345678"). It tries direct digit scanning first, then falls
// back to French digit-word dictation ("zéro six, douze, ...").
func ExtractPhone(text string) (string, bool) {
	if digits := directDigits(text); len(digits) == 10 && digits[0] == '0' {
		return digits, true
	} else if len(digits) == 9 {
		return "0" + digits, true
	} else if len(digits) == 11 && strings.HasPrefix(digits, "33") {
		return "0" + digits[2:], true
	}

	folded := guards.Fold(text)
	var out strings.Builder
	for _, segment := range strings.Split(folded, ",") {
		segment = strings.ReplaceAll(segment, "-", " ")
		tokens := cleanTokens(strings.Fields(segment))
		for i := 0; i < len(tokens); {
			value, consumed, ok := parseOneNumberWord(tokens[i:])
			if !ok {
				return "", false
			}
			out.WriteString(formatDigitGroup(value))
			i += consumed
		}
	}

	result := out.String()
	switch {
	case len(result) == 10 && result[0] == '0':
		return result, true
	case len(result) == 9:
		return "0" + result, true
	default:
		return "", false
	}
}

func directDigits(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.Trim(t, ".,!?;:")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func formatDigitGroup(n int) string {
	return strconv.Itoa(n)
}

// unitsWords covers 0-16; "dix" through "seize" double as the tens-digit of
// a phone pair (e.g. dictating "douze" for the digits "1" "2").
var unitsWords = map[string]int{
	"zero": 0, "un": 1, "une": 1, "deux": 2, "trois": 3, "quatre": 4,
	"cinq": 5, "six": 6, "sept": 7, "huit": 8, "neuf": 9,
	"dix": 10, "onze": 11, "douze": 12, "treize": 13, "quatorze": 14,
	"quinze": 15, "seize": 16,
}

var tensWords = map[string]int{
	"vingt": 20, "trente": 30, "quarante": 40, "cinquante": 50, "soixante": 60,
}

// parseOneNumberWord greedily parses a single French number (0-99) from the
// front of tokens. It returns the value, how many tokens were consumed, and
// whether parsing succeeded. A bare unit word (not a tens/quatre-vingt
// base) consumes exactly one token: digit-by-digit dictation relies on
// that, since "zéro six" must stay two separate digits, not the malformed
// "number" six-after-zero.
func parseOneNumberWord(tokens []string) (int, int, bool) {
	if len(tokens) == 0 {
		return 0, 0, false
	}

	t0 := tokens[0]
	var val, i int
	allowChain := false

	switch {
	case t0 == "quatre" && len(tokens) > 1 && tokens[1] == "vingt":
		val, i, allowChain = 80, 2, true
	case tensWords[t0] != 0:
		val, i, allowChain = tensWords[t0], 1, true
	case isKnownUnit(t0):
		val, i = unitsWords[t0], 1
	default:
		return 0, 0, false
	}

	if !allowChain {
		return val, i, true
	}

	for i < len(tokens) {
		if tokens[i] == "et" {
			if i+1 < len(tokens) && isKnownUnit(tokens[i+1]) {
				val += unitsWords[tokens[i+1]]
				i += 2
				continue
			}
			break
		}
		if isKnownUnit(tokens[i]) {
			val += unitsWords[tokens[i]]
			i++
			continue
		}
		break
	}
	return val, i, true
}

func isKnownUnit(t string) bool {
	_, ok := unitsWords[t]
	return ok
}

// ExtractTimePreference maps free text to a coarse availability window.
func ExtractTimePreference(text string) TimePreference {
	folded := guards.Fold(text)
	switch {
	case strings.Contains(folded, "matin"):
		return Morning
	case strings.Contains(folded, "apres-midi"), strings.Contains(folded, "apres midi"), strings.Contains(folded, "aprem"):
		return Afternoon
	default:
		return Unspecified
	}
}

var cardinalWords = map[string]int{"un": 1, "une": 1, "deux": 2, "trois": 3}
var ordinalWords = map[string]int{"premier": 1, "premiere": 1, "deuxieme": 2, "second": 2, "seconde": 2, "troisieme": 3}

// DetectSlotChoice resolves an utterance to one of the (1-based) proposed
// slots. slotLabels holds the rendered label for each currently pending
// offer (index 0 == slot 1), used to resolve day-name or hour references
// like "celui de mardi" or "14h". Returns (0, false) on any ambiguity.
func DetectSlotChoice(text string, slotLabels []string) (int, bool) {
	folded := guards.Fold(text)
	tokens := strings.Fields(folded)

	for _, t := range tokens {
		t = strings.Trim(t, ".,!?;:")
		if n, ok := asCardinalDigit(t); ok {
			return n, true
		}
		if n, ok := cardinalWords[t]; ok {
			return n, true
		}
		if n, ok := ordinalWords[t]; ok {
			return n, true
		}
	}

	if idx, ok := matchUniqueLabel(folded, slotLabels); ok {
		return idx, true
	}

	return 0, false
}

func asCardinalDigit(t string) (int, bool) {
	switch t {
	case "1":
		return 1, true
	case "2":
		return 2, true
	case "3":
		return 3, true
	default:
		return 0, false
	}
}

// matchUniqueLabel checks whether exactly one slot label shares a
// significant word (day name or hour token) with the utterance.
func matchUniqueLabel(foldedText string, slotLabels []string) (int, bool) {
	matches := 0
	matchIdx := 0
	for i, label := range slotLabels {
		foldedLabel := guards.Fold(label)
		for _, word := range strings.Fields(foldedLabel) {
			if len(word) < 3 {
				continue
			}
			if strings.Contains(foldedText, word) {
				matches++
				matchIdx = i + 1
				break
			}
		}
	}
	if matches == 1 {
		return matchIdx, true
	}
	return 0, false
}
