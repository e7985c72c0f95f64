// Package engine implements the deterministic conversation pipeline:
// HandleMessage runs one caller utterance through the guard chain, the
// per-state handler, and the safe-reply barrier, and returns the event(s)
// a channel adapter renders back. Nothing in this package is specific to
// any one transport — httpwebhook and chatws both call the same Engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deskagent/internal/audit"
	"deskagent/internal/calendar"
	"deskagent/internal/catalog"
	"deskagent/internal/clock"
	"deskagent/internal/faq"
	"deskagent/internal/fsm"
	"deskagent/internal/guards"
	"deskagent/internal/intent"
	"deskagent/internal/recovery"
	"deskagent/internal/session"
)

// Deps bundles everything HandleMessage needs to do its work. Fallback and
// FAQ are optional; everything else is required.
type Deps struct {
	Store    session.Store
	Catalog  *catalog.Catalog
	Calendar calendar.Backend
	Fallback calendar.Backend
	FAQ      faq.Matcher
	Audit    audit.Sink
	Clock    clock.Clock
	Logger   *slog.Logger
	Config   Config
}

// Engine owns no mutable state itself beyond a lock stripe; all
// conversation state lives in the session.Store.
type Engine struct {
	store    session.Store
	cat      *catalog.Catalog
	cal      calendar.Backend
	fallback calendar.Backend
	faqm     faq.Matcher
	audit    audit.Sink
	clock    clock.Clock
	log      *slog.Logger
	cfg      Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Engine from its dependencies, applying config defaults.
func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{
		store:    d.Store,
		cat:      d.Catalog,
		cal:      d.Calendar,
		fallback: d.Fallback,
		faqm:     d.FAQ,
		audit:    d.Audit,
		clock:    d.Clock,
		log:      d.Logger,
		cfg:      d.Config.withDefaults(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the striped mutex guarding a single (tenant, conv) pair,
// implementing P7: messages for one conversation are always serialized,
// while unrelated conversations process concurrently.
func (e *Engine) lockFor(tenantID, convID string) *sync.Mutex {
	key := tenantID + "/" + convID
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[key] = mu
	}
	return mu
}

func catalogChannel(c session.Channel) catalog.Channel {
	if c == session.Voice {
		return catalog.Voice
	}
	return catalog.Text
}

// HandleMessage runs a single inbound utterance through the full pipeline
// and returns the events the caller should see. It never returns an error
// for ordinary conversation flow — internal failures (a recovered panic, a
// calendar outage) are turned into a TRANSFERRED event instead, and the
// safe-reply barrier guarantees at least one non-empty event. A non-nil
// error return means the session itself could not be loaded; a failed save
// is logged, not returned.
func (e *Engine) HandleMessage(ctx context.Context, tenantID, convID string, text string, channel session.Channel, callerID string) (events []Event, err error) {
	mu := e.lockFor(tenantID, convID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	sess, err := e.store.GetOrCreate(ctx, tenantID, convID, channel, now)
	if err != nil {
		return nil, fmt.Errorf("engine: load session: %w", err)
	}

	if callerID != "" && sess.CallerID == "" {
		sess.CallerID = callerID
	}

	isNewSession := len(sess.History) == 0

	// Step 1: terminal gate. No side effects at all — not even a Save.
	if sess.State.Terminal() {
		closedText, rerr := e.cat.Render("system.conversation_closed", catalogChannel(sess.Channel), nil)
		if rerr != nil {
			closedText = "Cette conversation est terminée."
		}
		return []Event{{Kind: KindFinal, Text: closedText, NewState: sess.State}}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic recovered in pipeline", slog.Any("panic", r), slog.String("conv_id", convID))
			events = e.forceTransfer(ctx, sess, fmt.Sprintf("panic: %v", r))
		}
		events = e.safeReplyBarrier(sess, events)
		if sess.State.Terminal() {
			sess.Counters.ConsecutiveQuestions = 0
		}
		for _, ev := range events {
			sess.AppendHistory(session.RoleAgent, ev.Text, e.clock.Now())
		}
		sess.Touch(e.clock.Now())
		if serr := e.store.Save(ctx, sess); serr != nil {
			e.log.Error("session save failed", slog.String("error", serr.Error()), slog.String("conv_id", convID))
		}
	}()

	var greeting []Event
	if isNewSession {
		ev, gerr := e.emit(sess, "greeting", KindPartial, sess.State, map[string]string{"business_name": e.cfg.BusinessName})
		if gerr != nil {
			e.log.Warn("greeting render failed", slog.String("error", gerr.Error()))
		} else {
			greeting = []Event{ev}
		}
	}

	sess.AppendHistory(session.RoleUser, text, now)

	events, err = e.runPipeline(ctx, sess, text, now)
	if err != nil {
		return nil, err
	}
	return append(greeting, events...), nil
}

// runPipeline implements steps 2-7 of the dispatch sequence: anti-loop
// guard before strong-intent override, before basic guards, before the
// expiry check, before correction/recovery triggers, before the state
// handler itself.
func (e *Engine) runPipeline(ctx context.Context, sess *session.Session, text string, now time.Time) ([]Event, error) {
	// Step 2: anti-loop guard.
	sess.Counters.TurnCount++
	if sess.Counters.TurnCount > e.cfg.MaxTurnsAntiLoop {
		return e.enterIntentRouter(ctx, sess, "anti_loop_25")
	}

	// Step 3: strong-intent override.
	if ev, handled, err := e.tryStrongIntentOverride(ctx, sess, text); handled {
		return ev, err
	}

	// Step 4: basic guards.
	if ev, handled, err := e.runBasicGuards(ctx, sess, text); handled {
		return ev, err
	}

	// Step 5: session-expiry check.
	if e.store.IsExpired(sess, now) {
		sess.ResetExpired(now)
		return e.replySameState(sess, "system.session_expired", KindFinal, nil)
	}

	// Step 6: correction & unified recovery triggers.
	if ev, handled, err := e.runCorrectionAndRecoveryTriggers(ctx, sess, text); handled {
		return ev, err
	}

	// Step 7: state handler dispatch.
	h, ok := handlers[sess.State]
	if !ok {
		return e.forceTransfer(ctx, sess, fmt.Sprintf("no handler for state %s", sess.State)), nil
	}
	return h(ctx, e, sess, text)
}

func (e *Engine) tryStrongIntentOverride(ctx context.Context, sess *session.Session, text string) ([]Event, bool, error) {
	strong, ok := intent.DetectStrong(text)
	if !ok {
		return nil, false, nil
	}
	if e.isOverrideNoOp(sess, strong) {
		return nil, false, nil
	}
	sess.LastIntent = string(strong)
	switch strong {
	case intent.Cancel:
		ev, err := e.reply(sess, fsm.CancelName, "cancel.ask_name", KindFinal, nil)
		return ev, true, err
	case intent.Modify:
		ev, err := e.reply(sess, fsm.ModifyName, "modify.ask_name", KindFinal, nil)
		return ev, true, err
	case intent.Transfer:
		ev, err := e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
		return ev, true, err
	}
	return nil, false, nil
}

func (e *Engine) isOverrideNoOp(sess *session.Session, strong intent.Intent) bool {
	switch strong {
	case intent.Cancel:
		if sess.State == fsm.CancelName || sess.State == fsm.CancelConfirm {
			return true
		}
	case intent.Modify:
		if sess.State == fsm.ModifyName || sess.State == fsm.ModifyConfirm {
			return true
		}
	}
	return string(strong) == sess.LastIntent
}

func (e *Engine) runBasicGuards(ctx context.Context, sess *session.Session, text string) ([]Event, bool, error) {
	if guards.IsEmpty(text) {
		sess.Counters.EmptyMessageCount++
		if sess.Counters.EmptyMessageCount >= session.MaxEmptyMessages {
			ev, err := e.enterIntentRouter(ctx, sess, "empty_repeated")
			return ev, true, err
		}
		ev, err := e.replySameState(sess, "system.empty_input", KindPartial, nil)
		return ev, true, err
	}
	sess.Counters.EmptyMessageCount = 0

	if guards.IsTooLong(text, e.cfg.MaxMessageLength) {
		ev, err := e.replySameState(sess, "system.too_long", KindPartial, nil)
		return ev, true, err
	}
	if !guards.IsFrench(text) {
		ev, err := e.replySameState(sess, "system.french_only", KindPartial, nil)
		return ev, true, err
	}
	if guards.IsSpamOrAbuse(text) {
		ev, err := e.reply(sess, fsm.Transferred, "transfer.generic", KindTransfer, nil)
		return ev, true, err
	}
	return nil, false, nil
}

func (e *Engine) runCorrectionAndRecoveryTriggers(ctx context.Context, sess *session.Session, text string) ([]Event, bool, error) {
	if intent.DetectCorrection(text) && sess.LastQuestionAsked != "" {
		sess.Counters.CorrectionCount++
		if sess.Counters.CorrectionCount >= session.MaxCorrections {
			ev, err := e.enterIntentRouter(ctx, sess, "correction_repeated")
			return ev, true, err
		}
		ev, err := e.replayLastQuestion(sess)
		return ev, true, err
	}

	if e.shouldTriggerIntentRouter(sess) {
		reason := "global_recovery_fails"
		if sess.Counters.ConsecutiveQuestions >= session.MaxConsecutiveQuestions {
			reason = "consecutive_questions"
		}
		ev, err := e.enterIntentRouter(ctx, sess, reason)
		return ev, true, err
	}

	return nil, false, nil
}

func (e *Engine) shouldTriggerIntentRouter(sess *session.Session) bool {
	return sess.Counters.GlobalRecoveryFails >= session.MaxGlobalRecoveryFails ||
		sess.Counters.ConsecutiveQuestions >= session.MaxConsecutiveQuestions
}

func (e *Engine) replayLastQuestion(sess *session.Session) ([]Event, error) {
	sess.Counters.ConsecutiveQuestions++
	return []Event{{Kind: KindPartial, Text: sess.LastQuestionAsked, NewState: sess.State}}, nil
}

// emit renders key for sess's channel, records it as the replayable last
// question when it's a genuine question, and bumps the consecutive-
// questions counter per the catalog's own asks_question declaration (Open
// Question #1 — never sniffed from the rendered text).
func (e *Engine) emit(sess *session.Session, key string, kind Kind, newState fsm.State, vars map[string]string) (Event, error) {
	text, err := e.cat.Render(key, catalogChannel(sess.Channel), vars)
	if err != nil {
		return Event{}, err
	}
	if !newState.Terminal() {
		if e.cat.AsksQuestion(key) {
			sess.LastQuestionAsked = text
			sess.Counters.ConsecutiveQuestions++
		} else {
			sess.LastQuestionAsked = ""
		}
	}
	return Event{Kind: kind, Text: text, NewState: newState}, nil
}

// reply validates the transition, emits key, and commits the new state in
// one step. On any failure (invalid transition or unknown key) it forces a
// TRANSFERRED event instead of propagating an error into the pipeline.
func (e *Engine) reply(sess *session.Session, to fsm.State, key string, kind Kind, vars map[string]string) ([]Event, error) {
	if !fsm.CanTransition(sess.State, to) {
		return e.forceTransfer(context.Background(), sess, fmt.Sprintf("invalid transition %s->%s", sess.State, to)), nil
	}
	ev, err := e.emit(sess, key, kind, to, vars)
	if err != nil {
		return e.forceTransfer(context.Background(), sess, err.Error()), nil
	}
	sess.State = to
	return []Event{ev}, nil
}

// replySameState emits key without attempting a transition, used for
// clarification prompts and retries that keep the caller in place.
func (e *Engine) replySameState(sess *session.Session, key string, kind Kind, vars map[string]string) ([]Event, error) {
	ev, err := e.emit(sess, key, kind, sess.State, vars)
	if err != nil {
		return e.forceTransfer(context.Background(), sess, err.Error()), nil
	}
	return []Event{ev}, nil
}

// ackThenReply emits a non-transitioning acknowledgement followed by the
// actual state transition and its question, so a flow can say "d'accord"
// before asking the next thing instead of silently jumping states.
func (e *Engine) ackThenReply(sess *session.Session, ackKey string, to fsm.State, nextKey string, vars map[string]string) ([]Event, error) {
	ackEv, err := e.emit(sess, ackKey, KindPartial, sess.State, nil)
	if err != nil {
		return e.forceTransfer(context.Background(), sess, err.Error()), nil
	}
	rest, err := e.reply(sess, to, nextKey, KindFinal, vars)
	if err != nil {
		return rest, err
	}
	return append([]Event{ackEv}, rest...), nil
}

// forceTransfer routes sess to TRANSFERRED unconditionally, used for
// internal faults where the ordinary reply path itself cannot be trusted
// (unknown catalog key, disallowed transition, recovered panic). It always
// succeeds: the transfer.generic prompt doesn't depend on any session
// state, and TRANSFERRED is reachable from every non-terminal state.
func (e *Engine) forceTransfer(ctx context.Context, sess *session.Session, cause string) []Event {
	e.log.Error("internal fault, forcing transfer", slog.String("cause", cause), slog.String("conv_id", sess.ConvID))
	text, err := e.cat.Render("transfer.generic", catalogChannel(sess.Channel), nil)
	if err != nil {
		text = "Je vous transfère à un conseiller."
	}
	sess.State = fsm.Transferred
	sess.LastQuestionAsked = ""
	e.appendAudit(ctx, sess, "internal_fault", cause, lastUserUtterance(sess))
	return []Event{{Kind: KindTransfer, Text: text, NewState: fsm.Transferred}}
}

// enterIntentRouter implements the intent-router entry sequence: audit the
// trigger, clear counters and replay/pending-slot state, transition, and
// present the menu.
func (e *Engine) enterIntentRouter(ctx context.Context, sess *session.Session, reason string) ([]Event, error) {
	prevState := sess.State
	e.appendAudit(ctx, sess, "intent_router_triggered", reason, lastUserUtterance(sess))
	e.log.Info("intent router triggered",
		slog.String("conv_id", sess.ConvID),
		slog.String("reason", reason),
		slog.String("previous_state", string(prevState)))

	sess.ClearForIntentRouter()
	if !fsm.CanTransition(prevState, fsm.IntentRouter) {
		return e.forceTransfer(ctx, sess, fmt.Sprintf("cannot enter intent router from %s", prevState)), nil
	}
	sess.State = fsm.IntentRouter
	ev, err := e.emit(sess, "router.menu", KindFinal, fsm.IntentRouter, nil)
	if err != nil {
		return e.forceTransfer(ctx, sess, err.Error()), nil
	}
	return []Event{ev}, nil
}

// handleContextFailure is the shared per-context recovery path used by
// every qualification/cancel/modify handler on an unparseable answer:
// increment the counter, escalate to the intent router once it's
// exhausted, otherwise re-ask with the next graduated clarification.
func (e *Engine) handleContextFailure(ctx context.Context, sess *session.Session, counterContext, catalogContext string, vars map[string]string) ([]Event, error) {
	n := recovery.Increment(sess, counterContext)
	if recovery.ShouldEscalate(sess, counterContext) {
		return e.enterIntentRouter(ctx, sess, counterContext)
	}
	key, ok := recovery.ClarificationFor(e.cat, catalogContext, n)
	if !ok {
		return e.enterIntentRouter(ctx, sess, counterContext)
	}
	return e.replySameState(sess, key, KindPartial, vars)
}

// handleConfirmAmbiguous backs the yes/no confirmation steps that aren't
// among the five tracked recovery contexts (cancel/modify confirmation):
// bounded by confirm_retry_max instead of the context-fail ceiling.
func (e *Engine) handleConfirmAmbiguous(sess *session.Session, askAgainKey string, escalateTo fsm.State, escalateKey string) ([]Event, error) {
	n := recovery.Increment(sess, "general")
	if n > e.cfg.ConfirmRetryMax {
		return e.reply(sess, escalateTo, escalateKey, KindTransfer, nil)
	}
	return e.replySameState(sess, askAgainKey, KindFinal, nil)
}

func (e *Engine) appendAudit(ctx context.Context, sess *session.Session, eventName, reason, userMessage string) {
	if e.audit == nil {
		return
	}
	counters := countersSnapshot(sess.Counters)
	ev := audit.NewEvent(sess.TenantID, sess.ConvID, eventName, string(sess.State), reason, counters, userMessage, e.clock.Now())
	if err := e.audit.Append(ctx, ev); err != nil {
		e.log.Warn("audit append failed", slog.String("error", err.Error()))
	}
}

// lastUserUtterance returns the text of the most recent user turn in sess's
// history, i.e. the utterance currently being processed: HandleMessage
// appends it before the pipeline runs, so it's already there by the time
// forceTransfer or enterIntentRouter need it for the audit trail.
func lastUserUtterance(sess *session.Session) string {
	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Role == session.RoleUser {
			return sess.History[i].Text
		}
	}
	return ""
}

func countersSnapshot(c session.Counters) map[string]int {
	return map[string]int{
		"turn_count":            c.TurnCount,
		"consecutive_questions": c.ConsecutiveQuestions,
		"global_recovery_fails": c.GlobalRecoveryFails,
		"correction_count":      c.CorrectionCount,
		"empty_message_count":   c.EmptyMessageCount,
		"slot_choice_fails":     c.SlotChoiceFails,
		"name_fails":            c.NameFails,
		"phone_fails":           c.PhoneFails,
		"preference_fails":      c.PreferenceFails,
		"contact_confirm_fails": c.ContactConfirmFails,
	}
}

// safeReplyBarrier is pipeline step 8 (P1): guarantee at least one non-empty
// event leaves the engine no matter what a handler produced.
func (e *Engine) safeReplyBarrier(sess *session.Session, events []Event) []Event {
	if len(events) == 0 {
		return []Event{e.fallbackEvent(sess)}
	}
	for i, ev := range events {
		if ev.Text == "" {
			events[i].Text = e.fallbackEvent(sess).Text
		}
	}
	return events
}

func (e *Engine) fallbackEvent(sess *session.Session) Event {
	text, err := e.cat.Render(safeReplyFallbackKey, catalogChannel(sess.Channel), nil)
	if err != nil {
		text = "D'accord."
	}
	return Event{Kind: KindFinal, Text: text, NewState: sess.State}
}

// firstName returns the first token of a full name, or the whole string if
// it has none.
func firstName(full string) string {
	for i, r := range full {
		if r == ' ' {
			return full[:i]
		}
	}
	return full
}
