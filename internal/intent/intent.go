// Package intent implements the engine's closed-vocabulary intent detector:
// fixed-string matching over folded text, never regular expressions, so the
// classification is immune to catastrophic backtracking and trivially
// auditable.
package intent

import (
	"strings"

	"deskagent/internal/guards"
)

// Intent is one of the tags the detector can produce. The zero value means
// "no intent detected".
type Intent string

const (
	None     Intent = ""
	Yes      Intent = "YES"
	No       Intent = "NO"
	Booking  Intent = "BOOKING"
	Cancel   Intent = "CANCEL"
	Modify   Intent = "MODIFY"
	Transfer Intent = "TRANSFER"
	Abandon  Intent = "ABANDON"
	FAQ      Intent = "FAQ"
)

// minTransferChars guards against barge-in noise like "humain" or
// "quelqu'un" hijacking an otherwise-progressing conversation into an
// escalation; see spec discussion on TRANSFER's length floor.
const minTransferChars = 14

// keyword lists: fixed substrings, checked against guards.Fold'd text.
// Ordering within a list doesn't matter; ordering across Detect's checks
// does.
var (
	yesWords      = []string{"oui", "ouais", "d'accord", "exact", "correct", "affirmatif", "parfait"}
	noWords       = []string{"non", "nope", "pas du tout", "negatif", "absolument pas"}
	bookingWords  = []string{"rendez-vous", "rendez vous", "rdv", "reserver", "prendre un creneau"}
	cancelWords   = []string{"annuler", "annulation", "annulez"}
	modifyWords   = []string{"modifier", "changer de creneau", "deplacer le", "reporter le"}
	transferWords = []string{"conseiller", "humain", "quelqu'un", "un agent", "une personne"}
	abandonWords  = []string{"laisse tomber", "annule tout", "au revoir", "tant pis", "j'abandonne"}
	faqWords      = []string{"question", "renseignement", "savoir si", "pouvez-vous me dire", "est-ce que vous"}

	correctionWords = []string{"attendez", "recommencez", "c'est pas ca", "pas ca", "erreur", "je me suis trompe"}
)

func containsAny(folded string, words []string) bool {
	for _, w := range words {
		if strings.Contains(folded, w) {
			return true
		}
	}
	return false
}

// Detect classifies an utterance into at most one tag. YES/NO are checked
// first since short confirmations are the most common turn in this engine;
// strong intents (CANCEL/MODIFY/TRANSFER) are checked independently by
// DetectStrong and are also reachable here for callers that just want a
// single classification pass.
func Detect(text string) Intent {
	folded := guards.Fold(text)

	switch {
	case containsAny(folded, yesWords):
		return Yes
	case containsAny(folded, noWords):
		return No
	case containsAny(folded, cancelWords):
		return Cancel
	case containsAny(folded, modifyWords):
		return Modify
	case containsAny(folded, transferWords):
		return Transfer
	case containsAny(folded, bookingWords):
		return Booking
	case containsAny(folded, abandonWords):
		return Abandon
	case containsAny(folded, faqWords):
		return FAQ
	default:
		return None
	}
}

// DetectStrong returns a strong intent (CANCEL, MODIFY, TRANSFER) eligible
// to preempt the current dialogue, per the pipeline's override step. A
// TRANSFER match shorter than minTransferChars is not strong — it's
// clarification-worthy noise, not an escalation request.
func DetectStrong(text string) (Intent, bool) {
	folded := guards.Fold(text)
	switch {
	case containsAny(folded, cancelWords):
		return Cancel, true
	case containsAny(folded, modifyWords):
		return Modify, true
	case containsAny(folded, transferWords):
		if len([]rune(text)) < minTransferChars {
			return None, false
		}
		return Transfer, true
	default:
		return None, false
	}
}

// DetectCorrection reports whether the utterance is a correction request
// ("attendez", "recommencez", "c'est pas ça") rather than an answer to the
// current question.
func DetectCorrection(text string) bool {
	return containsAny(guards.Fold(text), correctionWords)
}
