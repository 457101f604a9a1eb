package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"log/slog"

	"github.com/finwire/payflow/core/logger"
)

// Nav identifies a navigation action within a flow.
type Nav string

const (
	// NavBack returns to the previous field, clearing it and its dependents.
	NavBack Nav = "back"
	// NavCancel aborts the flow.
	NavCancel Nav = "cancel"
	// NavConfirm submits a fully collected form.
	NavConfirm Nav = "confirm"
)

// Receipt is the successful outcome of a submission.
type Receipt struct {
	ID     string
	Status string
}

// Submitter assembles collected values into the external DTO and submits it.
// Failures intended for the user should be returned as *SubmissionError.
type Submitter interface {
	Submit(ctx context.Context, values Values) (Receipt, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, values Values) (Receipt, error)

// Submit executes the underlying function.
func (f SubmitterFunc) Submit(ctx context.Context, values Values) (Receipt, error) {
	return f(ctx, values)
}

// Prompt is a rendered request for the next piece of input.
type Prompt struct {
	Text string
	// Field is the schema key being collected; empty for confirmation prompts.
	// Keyboards embed it so a press can be matched against the field it was
	// rendered for.
	Field string
	// Choices, when non-empty, are presented as buttons.
	Choices []Choice
	// AllowBack enables the back navigation button.
	AllowBack bool
	// Confirm marks a confirmation prompt (confirm/back/cancel keyboard).
	Confirm bool
}

// Messenger delivers prompts and notices to the flow owner.
type Messenger interface {
	SendPrompt(ctx context.Context, owner int64, flowID string, p Prompt) error
	SendNotice(ctx context.Context, owner int64, text string) error
}

// Flow binds a schema to its completion handler.
type Flow struct {
	Schema *Schema
	Submit Submitter
	// Title heads the confirmation summary.
	Title string
}

const (
	noticeNothingActive = "Nothing is in progress right now."
	noticeCancelled     = "Okay, cancelled. Nothing was submitted."
	noticeNotReady      = "The form is not complete yet."
	noticeInternalReset = "Something went wrong with this form, so it was reset. Please start over."
	noticeStoreTrouble  = "Temporary hiccup, please try again."
	confirmInstruction  = "Please review and confirm to submit."
	validationPrefix    = "That doesn't look right: "
)

// Engine is the step state machine driving all flows.
type Engine struct {
	store Store
	msgr  Messenger

	mu    sync.RWMutex
	flows map[string]Flow

	locksMu sync.Mutex
	locks   map[sessionKey]*sync.Mutex
}

// NewEngine creates an engine over the given session store and messenger.
func NewEngine(store Store, msgr Messenger) *Engine {
	return &Engine{
		store: store,
		msgr:  msgr,
		flows: make(map[string]Flow),
		locks: make(map[sessionKey]*sync.Mutex),
	}
}

// Register adds a flow to the engine's static dispatch table. Flows are
// registered once at startup; duplicate registration is an error.
func (e *Engine) Register(f Flow) error {
	if f.Schema == nil {
		return fmt.Errorf("form: flow registration requires a schema")
	}
	if f.Submit == nil {
		return fmt.Errorf("form: flow %s requires a submitter", f.Schema.FlowID())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id := f.Schema.FlowID()
	if _, dup := e.flows[id]; dup {
		return fmt.Errorf("form: flow already registered: %s", id)
	}
	e.flows[id] = f
	return nil
}

// Flow returns the registered flow for id.
func (e *Engine) Flow(id string) (Flow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.flows[id]
	return f, ok
}

// ActiveFlow reports the owner's in-flight flow id, if any.
func (e *Engine) ActiveFlow(ctx context.Context, owner int64) (string, bool) {
	id, err := e.store.ActiveFlow(ctx, owner)
	if err != nil {
		return "", false
	}
	return id, true
}

// Start creates a fresh session for (owner, flowID), replacing any in-flight
// session the owner had, and prompts for the first field.
func (e *Engine) Start(ctx context.Context, owner int64, flowID string) error {
	flow, ok := e.Flow(flowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowUnknown, flowID)
	}

	unlock := e.lock(owner, flowID)
	defer unlock()

	// One active flow per owner: starting a new flow abandons the old one.
	if prev, err := e.store.ActiveFlow(ctx, owner); err == nil && prev != flowID {
		if err := e.store.Remove(ctx, owner, prev); err != nil {
			return fmt.Errorf("form: drop previous session: %w", err)
		}
		logger.Debug(ctx, "form", "session.replaced",
			slog.String("status", "ok"),
			slog.String("flow", flowID),
			slog.String("prev_flow", prev),
			slog.Int64("user_id", owner),
		)
	}

	sess := NewSession(owner, flowID)
	if err := e.store.Put(ctx, owner, flowID, sess); err != nil {
		return fmt.Errorf("form: store session: %w", err)
	}

	logger.Info(ctx, "form", "flow.started",
		slog.String("status", "ok"),
		slog.String("flow", flowID),
		slog.Int64("user_id", owner),
		slog.Int("fields", flow.Schema.Len()),
	)
	return e.promptCurrent(ctx, flow, sess)
}

// HandleText processes a free-text answer for the owner's session.
func (e *Engine) HandleText(ctx context.Context, owner int64, flowID, text string) error {
	return e.handleInput(ctx, owner, flowID, "", text, false)
}

// HandleChoice processes a press of a choice button rendered for fieldKey.
// Presses whose field is not the one currently being collected are ignored
// as idempotent no-ops, so a duplicate tap on an old keyboard can never
// answer a later field that happens to share the option key.
func (e *Engine) HandleChoice(ctx context.Context, owner int64, flowID, fieldKey, choiceKey string) error {
	return e.handleInput(ctx, owner, flowID, fieldKey, choiceKey, true)
}

func (e *Engine) handleInput(ctx context.Context, owner int64, flowID, fieldKey, raw string, fromButton bool) error {
	flow, ok := e.Flow(flowID)
	if !ok {
		return e.msgr.SendNotice(ctx, owner, noticeNothingActive)
	}

	unlock := e.lock(owner, flowID)
	defer unlock()

	sess, err := e.store.Get(ctx, owner, flowID)
	if errors.Is(err, ErrSessionNotFound) {
		return e.msgr.SendNotice(ctx, owner, noticeNothingActive)
	}
	if err != nil {
		_ = e.msgr.SendNotice(ctx, owner, noticeStoreTrouble)
		return fmt.Errorf("form: load session: %w", err)
	}
	if !sess.Active() {
		return nil
	}

	field := flow.Schema.Next(sess.Values)
	if field == nil {
		if fromButton {
			// Stale tap after the schema was satisfied.
			return nil
		}
		// Schema satisfied; a stray answer re-renders the confirmation.
		return e.promptConfirmation(ctx, flow, sess)
	}

	if fromButton && field.Key != fieldKey {
		// The press was rendered for a field other than the cursor field:
		// a duplicate or out-of-date tap. Ignore.
		return nil
	}

	canonical, err := flow.Schema.Validate(*field, raw, sess.Values)
	if err != nil {
		return e.handleValidationFailure(ctx, flow, sess, *field, err)
	}

	sess.Values[field.Key] = canonical
	sess.Touch()
	if flow.Schema.Next(sess.Values) == nil {
		sess.Status = StatusReady
	}
	if err := e.store.Put(ctx, owner, flowID, sess); err != nil {
		_ = e.msgr.SendNotice(ctx, owner, noticeStoreTrouble)
		return fmt.Errorf("form: store session: %w", err)
	}

	logger.Debug(ctx, "form", "field.accepted",
		slog.String("status", "ok"),
		slog.String("flow", flowID),
		slog.String("field", field.Key),
		slog.Int("cursor", flow.Schema.Cursor(sess.Values)),
		slog.Int64("user_id", owner),
	)

	if sess.Status == StatusReady {
		return e.promptConfirmation(ctx, flow, sess)
	}
	return e.promptCurrent(ctx, flow, sess)
}

func (e *Engine) handleValidationFailure(ctx context.Context, flow Flow, sess *Session, field FieldSpec, err error) error {
	if errors.Is(err, ErrDependencyUnmet) {
		// Internal invariant violation: the schema asked for a field before
		// its dependency was set. Reset rather than guess.
		logger.Error(ctx, "form", "field.dependency_unmet",
			slog.String("status", "fail"),
			slog.String("flow", sess.FlowID),
			slog.String("field", field.Key),
			slog.String("depends_on", field.DependsOn),
			slog.Int64("user_id", sess.Owner),
		)
		if rmErr := e.store.Remove(ctx, sess.Owner, sess.FlowID); rmErr != nil {
			return fmt.Errorf("form: reset session: %w", rmErr)
		}
		return e.msgr.SendNotice(ctx, sess.Owner, noticeInternalReset)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("form: validate %s: %w", field.Key, err)
	}

	logger.Debug(ctx, "form", "field.rejected",
		slog.String("status", "skip"),
		slog.String("flow", sess.FlowID),
		slog.String("field", field.Key),
		slog.Int64("user_id", sess.Owner),
	)
	return e.msgr.SendPrompt(ctx, sess.Owner, sess.FlowID, e.render(flow, sess, &field, validationPrefix+vErr.Reason))
}

// HandleNavigate processes back/cancel/confirm presses.
func (e *Engine) HandleNavigate(ctx context.Context, owner int64, flowID string, nav Nav) error {
	flow, ok := e.Flow(flowID)
	if !ok {
		return e.msgr.SendNotice(ctx, owner, noticeNothingActive)
	}

	unlock := e.lock(owner, flowID)
	defer unlock()

	sess, err := e.store.Get(ctx, owner, flowID)
	if errors.Is(err, ErrSessionNotFound) {
		return e.msgr.SendNotice(ctx, owner, noticeNothingActive)
	}
	if err != nil {
		_ = e.msgr.SendNotice(ctx, owner, noticeStoreTrouble)
		return fmt.Errorf("form: load session: %w", err)
	}
	if !sess.Active() {
		return nil
	}

	switch nav {
	case NavBack:
		return e.navigateBack(ctx, flow, sess)
	case NavCancel:
		return e.cancel(ctx, sess)
	case NavConfirm:
		return e.confirm(ctx, flow, sess)
	default:
		return e.msgr.SendNotice(ctx, owner, noticeNothingActive)
	}
}

func (e *Engine) navigateBack(ctx context.Context, flow Flow, sess *Session) error {
	prev, ok := flow.Schema.Prev(sess.Values)
	if !ok {
		// Nothing answered yet; re-prompt the first field.
		return e.promptCurrent(ctx, flow, sess)
	}
	flow.Schema.Clear(sess.Values, prev.Key)
	sess.Status = StatusCollecting
	sess.Touch()
	if err := e.store.Put(ctx, sess.Owner, sess.FlowID, sess); err != nil {
		_ = e.msgr.SendNotice(ctx, sess.Owner, noticeStoreTrouble)
		return fmt.Errorf("form: store session: %w", err)
	}
	logger.Debug(ctx, "form", "nav.back",
		slog.String("status", "ok"),
		slog.String("flow", sess.FlowID),
		slog.String("field", prev.Key),
		slog.Int64("user_id", sess.Owner),
	)
	return e.promptCurrent(ctx, flow, sess)
}

func (e *Engine) cancel(ctx context.Context, sess *Session) error {
	sess.Status = StatusCancelled
	if err := e.store.Remove(ctx, sess.Owner, sess.FlowID); err != nil {
		return fmt.Errorf("form: remove session: %w", err)
	}
	logger.Info(ctx, "form", "flow.cancelled",
		slog.String("status", "cancelled"),
		slog.String("flow", sess.FlowID),
		slog.Int64("user_id", sess.Owner),
	)
	return e.msgr.SendNotice(ctx, sess.Owner, noticeCancelled)
}

func (e *Engine) confirm(ctx context.Context, flow Flow, sess *Session) error {
	if sess.Status != StatusReady || flow.Schema.Next(sess.Values) != nil {
		return e.msgr.SendNotice(ctx, sess.Owner, noticeNotReady)
	}

	sess.Status = StatusSubmitting
	sess.Touch()
	if err := e.store.Put(ctx, sess.Owner, sess.FlowID, sess); err != nil {
		_ = e.msgr.SendNotice(ctx, sess.Owner, noticeStoreTrouble)
		return fmt.Errorf("form: store session: %w", err)
	}

	receipt, err := flow.Submit.Submit(ctx, sess.Values.Clone())

	// Success or failure, the attempt is terminal: values are discarded and
	// the user must start over to retry. No automatic resubmission.
	if rmErr := e.store.Remove(ctx, sess.Owner, sess.FlowID); rmErr != nil {
		logger.Warn(ctx, "form", "session.remove_failed",
			slog.String("flow", sess.FlowID),
			slog.Int64("user_id", sess.Owner),
			slog.String("err", rmErr.Error()),
		)
	}

	if err != nil {
		sess.Status = StatusFailed
		logger.Error(ctx, "form", "flow.failed",
			slog.String("status", "fail"),
			slog.String("flow", sess.FlowID),
			slog.Int64("user_id", sess.Owner),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		var subErr *SubmissionError
		if errors.As(err, &subErr) {
			return e.msgr.SendNotice(ctx, sess.Owner, "❌ "+subErr.UserMessage())
		}
		return e.msgr.SendNotice(ctx, sess.Owner, "❌ "+(&SubmissionError{Err: err}).UserMessage())
	}

	sess.Status = StatusCompleted
	logger.Info(ctx, "form", "flow.completed",
		slog.String("status", "ok"),
		slog.String("flow", sess.FlowID),
		slog.Int64("user_id", sess.Owner),
		slog.String("receipt_id", receipt.ID),
	)
	text := "✅ Done."
	if receipt.ID != "" {
		text = fmt.Sprintf("✅ Done. Reference: %s", receipt.ID)
		if receipt.Status != "" {
			text += fmt.Sprintf(" (%s)", receipt.Status)
		}
	}
	return e.msgr.SendNotice(ctx, sess.Owner, text)
}

func (e *Engine) promptCurrent(ctx context.Context, flow Flow, sess *Session) error {
	field := flow.Schema.Next(sess.Values)
	if field == nil {
		return e.promptConfirmation(ctx, flow, sess)
	}
	return e.msgr.SendPrompt(ctx, sess.Owner, sess.FlowID, e.render(flow, sess, field, ""))
}

func (e *Engine) render(flow Flow, sess *Session, field *FieldSpec, preface string) Prompt {
	p := Prompt{
		Text:      field.Prompt,
		Field:     field.Key,
		AllowBack: flow.Schema.Cursor(sess.Values) > 0,
	}
	if field.Mode == ModeChoice {
		p.Choices = field.Choices
	}
	if preface != "" {
		p.Text = preface + "\n\n" + field.Prompt
	}
	return p
}

func (e *Engine) promptConfirmation(ctx context.Context, flow Flow, sess *Session) error {
	var b strings.Builder
	if flow.Title != "" {
		b.WriteString(flow.Title)
		b.WriteString("\n\n")
	}
	for _, f := range flow.Schema.Fields() {
		val, ok := sess.Values[f.Key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.label(), val)
	}
	b.WriteString("\n")
	b.WriteString(confirmInstruction)
	return e.msgr.SendPrompt(ctx, sess.Owner, sess.FlowID, Prompt{
		Text:      b.String(),
		AllowBack: true,
		Confirm:   true,
	})
}

// lock serializes the get-modify-put cycle for one (owner, flow) key.
// Cross-owner events proceed concurrently.
func (e *Engine) lock(owner int64, flowID string) func() {
	key := sessionKey{owner, flowID}
	e.locksMu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}
