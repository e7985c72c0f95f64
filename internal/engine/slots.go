package engine

import (
	"context"

	"deskagent/internal/calendar"
	"deskagent/internal/entities"
	"deskagent/internal/fsm"
	"deskagent/internal/session"
)

// proposeSlots calls the calendar backend for up to MaxSlotsProposed free
// slots matching the caller's stated preference, falling back to the
// secondary backend (if configured) on error or an empty result before
// giving up and transferring.
func (e *Engine) proposeSlots(ctx context.Context, sess *session.Session) ([]Event, error) {
	pref := entities.TimePreference(sess.Qualification.Preference)

	offers, err := e.fetchSlots(ctx, sess.TenantID, pref)
	if err != nil || len(offers) == 0 {
		return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
	}

	sess.PendingSlots = offers
	return e.reply(sess, fsm.WaitConfirm, "slot.proposal", KindFinal, slotVars(offers))
}

func (e *Engine) fetchSlots(ctx context.Context, tenantID string, pref entities.TimePreference) ([]session.SlotOffer, error) {
	cctx, cancel := calendar.WithDeadline(ctx)
	defer cancel()
	offers, err := e.cal.FreeSlots(cctx, tenantID, pref, e.cfg.MaxSlotsProposed)
	if err == nil && len(offers) > 0 {
		return offers, nil
	}
	if e.fallback == nil {
		return offers, err
	}
	fctx, fcancel := calendar.WithDeadline(ctx)
	defer fcancel()
	return e.fallback.FreeSlots(fctx, tenantID, pref, e.cfg.MaxSlotsProposed)
}

func slotVars(offers []session.SlotOffer) map[string]string {
	vars := map[string]string{"s1": "", "s2": "", "s3": ""}
	labels := []string{"s1", "s2", "s3"}
	for i, offer := range offers {
		if i >= len(labels) {
			break
		}
		vars[labels[i]] = offer.Label
	}
	return vars
}

func waitConfirmHandler(ctx context.Context, e *Engine, sess *session.Session, text string) ([]Event, error) {
	labels := make([]string, len(sess.PendingSlots))
	for i, s := range sess.PendingSlots {
		labels[i] = s.Label
	}

	choice, ok := entities.DetectSlotChoice(text, labels)
	if !ok || choice < 1 || choice > len(sess.PendingSlots) {
		return e.handleContextFailure(ctx, sess, "slot_choice", "slot_choice", nil)
	}

	slot := sess.PendingSlots[choice-1]
	result, err := e.bookSlot(ctx, sess.TenantID, slot, sess.Qualification)
	if err != nil {
		return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
	}

	switch result.Status {
	case calendar.BookOK:
		sess.PendingSlots = nil
		return e.reply(sess, fsm.Confirmed, "booking.confirmed", KindFinal, map[string]string{
			"first_name": firstName(sess.Qualification.Name),
			"slot_label": slot.Label,
		})
	case calendar.BookTaken:
		return e.reply(sess, fsm.Transferred, "slot.already_booked", KindTransfer, nil)
	default:
		return e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
	}
}

func (e *Engine) bookSlot(ctx context.Context, tenantID string, slot session.SlotOffer, q session.Qualification) (calendar.BookResult, error) {
	cctx, cancel := calendar.WithDeadline(ctx)
	defer cancel()
	result, err := e.cal.Book(cctx, tenantID, slot, q)
	if err == nil && result.Status != calendar.BookUnavailable {
		return result, nil
	}
	if e.fallback == nil {
		return result, err
	}
	fctx, fcancel := calendar.WithDeadline(ctx)
	defer fcancel()
	return e.fallback.Book(fctx, tenantID, slot, q)
}
