package engine

import (
	"context"
	"strings"

	"deskagent/internal/entities"
	"deskagent/internal/fsm"
	"deskagent/internal/guards"
	"deskagent/internal/intent"
	"deskagent/internal/recovery"
	"deskagent/internal/session"
)

// handlerFunc is the shape of a per-state handler: given the already-
// guarded utterance, decide what happens next.
type handlerFunc func(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error)

// handlers is the FSM-state dispatch table step 7 of the pipeline consults.
// CONFIRMED and TRANSFERRED have no entry: the terminal gate in
// HandleMessage never lets a session reach here in those states.
var handlers = map[fsm.State]handlerFunc{
	fsm.Start:             startHandler,
	fsm.Clarify:           clarifyHandler,
	fsm.FAQAnswered:       faqAnsweredHandler,
	fsm.QualifName:        qualifNameHandler,
	fsm.QualifMotif:       qualifMotifHandler,
	fsm.QualifPref:        qualifPrefHandler,
	fsm.PreferenceConfirm: preferenceConfirmHandler,
	fsm.QualifContact:     qualifContactHandler,
	fsm.ContactConfirm:    contactConfirmHandler,
	fsm.WaitConfirm:       waitConfirmHandler,
	fsm.CancelName:        cancelNameHandler,
	fsm.CancelConfirm:     cancelConfirmHandler,
	fsm.ModifyName:        modifyNameHandler,
	fsm.ModifyConfirm:     modifyConfirmHandler,
	fsm.IntentRouter:      intentRouterHandler,
}

func startHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes, intent.Booking:
		sess.Counters.ConsecutiveQuestions = 0
		return e.reply(sess, fsm.QualifName, "qualif.ask_name", KindFinal, nil)
	case intent.No:
		return e.reply(sess, fsm.Clarify, "clarify.general.1", KindFinal, nil)
	default:
		return e.runFAQFlow(ctx, sess, text)
	}
}

func clarifyHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes, intent.Booking:
		sess.Counters.ConsecutiveQuestions = 0
		return e.reply(sess, fsm.QualifName, "qualif.ask_name", KindFinal, nil)
	default:
		if match, ok := e.tryFAQMatch(ctx, sess, text); ok {
			sess.Counters.FAQMissFails = 0
			return e.reply(sess, fsm.FAQAnswered, "faq.answer", KindFinal, map[string]string{
				"answer": match.Answer, "source": match.ID,
			})
		}
		return e.exhaustGeneralClarify(sess)
	}
}

// exhaustGeneralClarify backs CLARIFY's fallback ladder: two re-asks, then
// straight to TRANSFERRED with clarify.still_unclear rather than the
// intent-router menu — a caller already lost in CLARIFY gets a human, not
// another menu.
func (e *Engine) exhaustGeneralClarify(sess *session.Session) ([]Event, error) {
	n := recovery.Increment(sess, "general")
	key, ok := recovery.ClarificationFor(e.cat, "general", n)
	if !ok {
		return e.reply(sess, fsm.Transferred, "clarify.still_unclear", KindTransfer, nil)
	}
	return e.replySameState(sess, key, KindPartial, nil)
}

func faqAnsweredHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes, intent.Booking:
		sess.Counters.ConsecutiveQuestions = 0
		return e.reply(sess, fsm.QualifName, "qualif.ask_name", KindFinal, nil)
	case intent.No, intent.Abandon:
		return e.reply(sess, fsm.FAQAnswered, "faq.goodbye", KindFinal, nil)
	default:
		return e.runFAQFlow(ctx, sess, text)
	}
}

func qualifNameHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	name, ok := entities.ExtractName(text)
	if !ok {
		return e.handleContextFailure(ctx, sess, "name", "name", nil)
	}
	sess.Qualification.Name = name
	sess.Counters.ConsecutiveQuestions = 0
	if sess.Channel == session.Voice {
		return e.reply(sess, fsm.QualifPref, "qualif.ask_preference", KindFinal, nil)
	}
	return e.reply(sess, fsm.QualifMotif, "qualif.ask_motif", KindFinal, nil)
}

func qualifMotifHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	sess.Qualification.Motif = strings.TrimSpace(text)
	sess.Counters.ConsecutiveQuestions = 0
	return e.reply(sess, fsm.QualifPref, "qualif.ask_preference", KindFinal, nil)
}

func qualifPrefHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	pref := entities.ExtractTimePreference(text)
	if pref == entities.Unspecified && !looksLikeNoPreference(text) {
		return e.reply(sess, fsm.PreferenceConfirm, "qualif.confirm_preference", KindFinal, nil)
	}
	sess.Qualification.Preference = string(pref)
	sess.Counters.ConsecutiveQuestions = 0
	return e.proceedAfterPreference(sess)
}

func preferenceConfirmHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes:
		sess.Qualification.Preference = string(entities.Unspecified)
		sess.Counters.ConsecutiveQuestions = 0
		return e.proceedAfterPreference(sess)
	case intent.No:
		return e.reply(sess, fsm.QualifPref, "qualif.ask_preference", KindFinal, nil)
	default:
		return e.handleContextFailure(ctx, sess, "preference", "preference", nil)
	}
}

// looksLikeNoPreference recognises the common "peu importe" family of
// answers as an explicit confirmation of Unspecified, so the caller isn't
// asked to confirm something they already stated plainly.
func looksLikeNoPreference(text string) bool {
	folded := guards.Fold(text)
	for _, phrase := range []string{"peu importe", "n'importe", "nimporte", "indifferent", "pas de preference", "aucune preference"} {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}

// proceedAfterPreference routes a caller_id on file through CONTACT_CONFIRM
// when enabled, otherwise the flow asks for contact details explicitly.
func (e *Engine) proceedAfterPreference(sess *session.Session) ([]Event, error) {
	if sess.CallerID != "" && e.cfg.ContactConfirmEnabled {
		sess.Qualification.Contact = sess.CallerID
		sess.Qualification.ContactType = "phone"
		return e.reply(sess, fsm.ContactConfirm, "qualif.confirm_number", KindFinal, map[string]string{"contact": sess.CallerID})
	}
	return e.reply(sess, fsm.QualifContact, "qualif.ask_contact", KindFinal, nil)
}

func qualifContactHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	phone, ok := entities.ExtractPhone(text)
	if !ok {
		return e.handleContextFailure(ctx, sess, "phone", "phone", nil)
	}
	sess.Qualification.Contact = phone
	sess.Qualification.ContactType = "phone"
	sess.Counters.ConsecutiveQuestions = 0
	return e.proposeSlots(ctx, sess)
}

func contactConfirmHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes:
		sess.Counters.ConsecutiveQuestions = 0
		return e.proposeSlots(ctx, sess)
	case intent.No:
		sess.Qualification.Contact = ""
		sess.Qualification.ContactType = ""
		return e.reply(sess, fsm.QualifContact, "qualif.ask_contact", KindFinal, nil)
	default:
		return e.handleContextFailure(ctx, sess, "contact_confirm", "contact_confirm", map[string]string{"contact": sess.CallerID})
	}
}
