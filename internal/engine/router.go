package engine

import (
	"context"
	"strings"

	"deskagent/internal/fsm"
	"deskagent/internal/guards"
	"deskagent/internal/recovery"
	"deskagent/internal/session"
)

// routerChoiceWords maps the menu's four options to their recognised
// cardinal/ordinal forms, folded for accent/case-insensitive matching.
// entities.DetectSlotChoice stops at three, so the menu's fourth option
// needs its own small lookup here.
var routerChoiceWords = map[string]int{
	"1": 1, "un": 1, "une": 1, "premier": 1, "premiere": 1,
	"2": 2, "deux": 2, "deuxieme": 2, "second": 2, "seconde": 2,
	"3": 3, "trois": 3, "troisieme": 3,
	"4": 4, "quatre": 4, "quatrieme": 4,
}

func detectRouterChoice(text string) (int, bool) {
	folded := guards.Fold(text)
	for _, t := range strings.Fields(folded) {
		t = strings.Trim(t, ".,!?;:")
		if n, ok := routerChoiceWords[t]; ok {
			return n, true
		}
	}
	return 0, false
}

// intentRouterHandler implements the stabilisation menu: a clean 1-4 choice
// jumps straight to the matching flow; anything else counts against a
// local recovery budget before giving up to TRANSFERRED.
func intentRouterHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	choice, ok := detectRouterChoice(text)
	if !ok {
		n := recovery.Increment(sess, "general")
		if n >= session.MaxContextFails {
			return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
		}
		return e.replySameState(sess, "router.retry", KindPartial, nil)
	}

	switch choice {
	case 1:
		return e.ackThenReply(sess, "router.option_booking", fsm.QualifName, "qualif.ask_name", nil)
	case 2:
		return e.ackThenReply(sess, "router.option_cancel_modify", fsm.CancelName, "cancel.ask_name", nil)
	case 3:
		return e.reply(sess, fsm.Start, "router.option_faq", KindFinal, nil)
	case 4:
		return e.reply(sess, fsm.Transferred, "router.option_transfer", KindTransfer, nil)
	default:
		return e.replySameState(sess, "router.retry", KindPartial, nil)
	}
}
