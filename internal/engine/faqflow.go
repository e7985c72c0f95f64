package engine

import (
	"context"

	"deskagent/internal/faq"
	"deskagent/internal/fsm"
	"deskagent/internal/session"
)

// maxFAQMisses is how many consecutive below-threshold FAQ answers the
// engine tolerates in START/FAQ_ANSWERED before escalating: first miss
// re-asks, second miss transfers.
const maxFAQMisses = 2

// tryFAQMatch reports a single FAQ lookup without any miss bookkeeping,
// used by CLARIFY where an unrecognised utterance falls through to the
// generic clarification ladder instead of the FAQ-specific one.
func (e *Engine) tryFAQMatch(ctx context.Context, sess *session.Session, text string) (faq.Match, bool) {
	if e.faqm == nil {
		return faq.Match{}, false
	}
	match, err := e.faqm.Match(ctx, sess.TenantID, text)
	if err != nil {
		e.log.Warn("faq matcher error", "error", err.Error())
		return faq.Match{}, false
	}
	return match, match.Score >= e.cfg.FAQThreshold
}

// runFAQFlow is the shared FAQ-seeking loop used by START and
// FAQ_ANSWERED: a confident match answers and parks in FAQ_ANSWERED; a
// miss re-asks once, then transfers.
func (e *Engine) runFAQFlow(ctx context.Context, sess *session.Session, text string) ([]Event, error) {
	if match, ok := e.tryFAQMatch(ctx, sess, text); ok {
		sess.Counters.FAQMissFails = 0
		return e.reply(sess, fsm.FAQAnswered, "faq.answer", KindFinal, map[string]string{
			"answer": match.Answer, "source": match.ID,
		})
	}

	sess.Counters.FAQMissFails++
	if sess.Counters.FAQMissFails >= maxFAQMisses {
		return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
	}
	return e.replySameState(sess, "faq.miss.1", KindPartial, nil)
}
