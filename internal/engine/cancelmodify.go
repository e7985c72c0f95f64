package engine

import (
	"context"

	"deskagent/internal/calendar"
	"deskagent/internal/entities"
	"deskagent/internal/fsm"
	"deskagent/internal/intent"
	"deskagent/internal/session"
)

func cancelNameHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	return e.lookupForFlow(ctx, sess, text, fsm.CancelConfirm, "cancel.confirm")
}

func modifyNameHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	return e.lookupForFlow(ctx, sess, text, fsm.ModifyConfirm, "modify.confirm")
}

// lookupForFlow backs both CANCEL_NAME and MODIFY_NAME: parse a name, look
// it up against the calendar, and either present the found appointment for
// confirmation or run the shared "name not found" clarification ladder.
func (e *Engine) lookupForFlow(ctx context.Context, sess *session.Session, text string, confirmState fsm.State, confirmKey string) ([]Event, error) {
	name, ok := entities.ExtractName(text)
	if !ok {
		return e.handleContextFailure(ctx, sess, "name", catalogContextFor(confirmState), nil)
	}

	lctx, cancel := calendar.WithDeadline(ctx)
	defer cancel()
	result, err := e.cal.Find(lctx, sess.TenantID, name)
	if err != nil {
		return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
	}
	if result.Status == calendar.LookupNotFound {
		return e.handleContextFailure(ctx, sess, "name", catalogContextFor(confirmState), nil)
	}

	sess.Qualification.Name = name
	return e.reply(sess, confirmState, confirmKey, KindFinal, map[string]string{"slot_label": result.SlotLabel})
}

func catalogContextFor(confirmState fsm.State) string {
	if confirmState == fsm.ModifyConfirm {
		return "modify_name"
	}
	return "cancel_name"
}

func cancelConfirmHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes:
		cctx, cancel := calendar.WithDeadline(ctx)
		defer cancel()
		result, err := e.cal.Cancel(cctx, sess.TenantID, sess.Qualification.Name)
		if err != nil || result.Status != calendar.LookupOK {
			return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
		}
		return e.reply(sess, fsm.Clarify, "cancel.done", KindFinal, nil)
	case intent.No:
		return e.reply(sess, fsm.Clarify, "cancel.kept", KindFinal, nil)
	default:
		return e.handleConfirmAmbiguous(sess, "cancel.confirm", fsm.Transferred, "transfer.generic")
	}
}

func modifyConfirmHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	switch intent.Detect(text) {
	case intent.Yes:
		cctx, cancel := calendar.WithDeadline(ctx)
		defer cancel()
		result, err := e.cal.Cancel(cctx, sess.TenantID, sess.Qualification.Name)
		if err != nil || result.Status != calendar.LookupOK {
			return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
		}
		sess.Qualification.Preference = ""
		return e.ackThenReply(sess, "modify.done", fsm.QualifPref, "qualif.ask_preference", nil)
	case intent.No:
		return e.reply(sess, fsm.Clarify, "modify.kept", KindFinal, nil)
	default:
		return e.handleConfirmAmbiguous(sess, "modify.confirm", fsm.Transferred, "transfer.generic")
	}
}
