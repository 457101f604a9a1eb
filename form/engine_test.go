package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type sentPrompt struct {
	owner  int64
	flowID string
	prompt Prompt
}

type fakeMessenger struct {
	mu      sync.Mutex
	prompts []sentPrompt
	notices []string
}

func (m *fakeMessenger) SendPrompt(_ context.Context, owner int64, flowID string, p Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, sentPrompt{owner, flowID, p})
	return nil
}

func (m *fakeMessenger) SendNotice(_ context.Context, owner int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *fakeMessenger) lastPrompt(t *testing.T) sentPrompt {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		t.Fatal("no prompt sent")
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *fakeMessenger) lastNotice(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notices) == 0 {
		t.Fatal("no notice sent")
	}
	return m.notices[len(m.notices)-1]
}

func (m *fakeMessenger) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts), len(m.notices)
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls int
	seen  []Values
	err   error
}

func (s *recordingSubmitter) Submit(_ context.Context, values Values) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, values)
	if s.err != nil {
		return Receipt{}, s.err
	}
	return Receipt{ID: fmt.Sprintf("rcpt-%d", s.calls), Status: "pending"}, nil
}

func testSchema(t *testing.T) *Schema {
	t.Helper()
	return MustSchema("test_flow",
		FieldSpec{Key: "country", Label: "Country", Prompt: "Which country?", Validate: Enum("usa", "can")},
		FieldSpec{
			Key: "routing", Label: "Routing number", Prompt: "Routing number?", DependsOn: "country",
			Validate: func(raw string, values Values) (string, error) {
				trimmed := strings.TrimSpace(raw)
				if values["country"] == "usa" && len(trimmed) != 9 {
					return "", &ValidationError{Reason: "must be 9 digits for USA"}
				}
				return trimmed, nil
			},
		},
		FieldSpec{Key: "purpose", Label: "Purpose", Prompt: "Purpose?", Mode: ModeChoice,
			Choices: []Choice{{Key: "personal", Label: "Personal"}, {Key: "business", Label: "Business"}}},
		FieldSpec{Key: "amount", Label: "Amount", Prompt: "How much?", Validate: Amount()},
	)
}

func newTestEngine(t *testing.T) (*Engine, *fakeMessenger, *recordingSubmitter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(0)
	t.Cleanup(store.Close)
	msgr := &fakeMessenger{}
	sub := &recordingSubmitter{}
	eng := NewEngine(store, msgr)
	if err := eng.Register(Flow{Schema: testSchema(t), Submit: sub, Title: "Test flow"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return eng, msgr, sub, store
}

const owner = int64(42)

func mustStart(t *testing.T, eng *Engine) {
	t.Helper()
	if err := eng.Start(context.Background(), owner, "test_flow"); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func cursorOf(t *testing.T, store *MemoryStore, schema *Schema) int {
	t.Helper()
	sess, err := store.Get(context.Background(), owner, "test_flow")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return schema.Cursor(sess.Values)
}

func TestValidInputAdvancesCursorByOne(t *testing.T) {
	eng, msgr, _, store := newTestEngine(t)
	schema := testSchema(t)
	ctx := context.Background()
	mustStart(t, eng)

	if got := cursorOf(t, store, schema); got != 0 {
		t.Fatalf("cursor = %d, want 0", got)
	}
	if err := eng.HandleText(ctx, owner, "test_flow", "USA"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := cursorOf(t, store, schema); got != 1 {
		t.Fatalf("cursor = %d, want 1", got)
	}

	sess, _ := store.Get(ctx, owner, "test_flow")
	if sess.Values["country"] != "usa" {
		t.Fatalf("country = %q, want canonical usa", sess.Values["country"])
	}
	p := msgr.lastPrompt(t)
	if p.prompt.Text != "Routing number?" {
		t.Fatalf("next prompt = %q", p.prompt.Text)
	}
	if p.prompt.Field != "routing" {
		t.Fatalf("prompt field = %q, want routing", p.prompt.Field)
	}
}

func TestInvalidInputKeepsCursorAndRestatesConstraint(t *testing.T) {
	eng, msgr, _, store := newTestEngine(t)
	schema := testSchema(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	if err := eng.HandleText(ctx, owner, "test_flow", "1234"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := cursorOf(t, store, schema); got != 1 {
		t.Fatalf("cursor = %d, want 1 (unchanged)", got)
	}
	p := msgr.lastPrompt(t)
	if !strings.Contains(p.prompt.Text, "must be 9 digits for USA") {
		t.Fatalf("expected constraint restated, got %q", p.prompt.Text)
	}
	if !strings.Contains(p.prompt.Text, "Routing number?") {
		t.Fatalf("expected re-prompt of same field, got %q", p.prompt.Text)
	}
}

func TestAmountFieldRejectsThenAdvances(t *testing.T) {
	eng, msgr, _, store := newTestEngine(t)
	schema := testSchema(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "can")
	_ = eng.HandleText(ctx, owner, "test_flow", "12345")
	_ = eng.HandleChoice(ctx, owner, "test_flow", "purpose", "personal")

	if err := eng.HandleText(ctx, owner, "test_flow", "abc"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := cursorOf(t, store, schema); got != 3 {
		t.Fatalf("cursor = %d, want 3 (still amount)", got)
	}

	if err := eng.HandleText(ctx, owner, "test_flow", "12.50"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	p := msgr.lastPrompt(t)
	if !p.prompt.Confirm {
		t.Fatalf("expected confirmation prompt after final field, got %+v", p.prompt)
	}
	if !strings.Contains(p.prompt.Text, "Amount: 12.50") {
		t.Fatalf("expected amount in summary, got %q", p.prompt.Text)
	}
}

func TestBackThenSameValueRestoresState(t *testing.T) {
	eng, _, _, store := newTestEngine(t)
	schema := testSchema(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	_ = eng.HandleText(ctx, owner, "test_flow", "123456789")

	before, _ := store.Get(ctx, owner, "test_flow")
	beforeValues := before.Values.Clone()
	beforeCursor := schema.Cursor(before.Values)

	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavBack); err != nil {
		t.Fatalf("HandleNavigate: %v", err)
	}
	mid, _ := store.Get(ctx, owner, "test_flow")
	if _, ok := mid.Values["routing"]; ok {
		t.Fatal("back should have cleared routing")
	}

	if err := eng.HandleText(ctx, owner, "test_flow", "123456789"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	after, _ := store.Get(ctx, owner, "test_flow")
	if schema.Cursor(after.Values) != beforeCursor {
		t.Fatalf("cursor = %d, want %d", schema.Cursor(after.Values), beforeCursor)
	}
	for k, v := range beforeValues {
		if after.Values[k] != v {
			t.Fatalf("value %s = %q, want %q", k, after.Values[k], v)
		}
	}
}

func TestBackFromDependentFieldClearsDependency(t *testing.T) {
	eng, msgr, _, store := newTestEngine(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	// Cursor now on routing; back clears country, which gates routing.
	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavBack); err != nil {
		t.Fatalf("HandleNavigate: %v", err)
	}
	sess, _ := store.Get(ctx, owner, "test_flow")
	if len(sess.Values) != 0 {
		t.Fatalf("expected empty values, got %v", sess.Values)
	}
	if p := msgr.lastPrompt(t); p.prompt.Text != "Which country?" {
		t.Fatalf("expected country re-prompt, got %q", p.prompt.Text)
	}
}

func TestCancelledSessionRejectsFurtherInput(t *testing.T) {
	eng, msgr, sub, store := newTestEngine(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavCancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if msgr.lastNotice(t) != noticeCancelled {
		t.Fatalf("expected cancel acknowledgment, got %q", msgr.lastNotice(t))
	}
	if _, err := store.Get(ctx, owner, "test_flow"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("session should be removed on cancel")
	}

	prompts, _ := msgr.counts()
	if err := eng.HandleText(ctx, owner, "test_flow", "123456789"); err != nil {
		t.Fatalf("HandleText after cancel: %v", err)
	}
	if msgr.lastNotice(t) != noticeNothingActive {
		t.Fatalf("expected neutral acknowledgment, got %q", msgr.lastNotice(t))
	}
	if p, _ := msgr.counts(); p != prompts {
		t.Fatal("no prompt should be sent after cancellation")
	}
	if sub.calls != 0 {
		t.Fatal("nothing should have been submitted")
	}
}

func TestConfirmSubmitsExactlyOnce(t *testing.T) {
	eng, msgr, sub, store := newTestEngine(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	_ = eng.HandleText(ctx, owner, "test_flow", "123456789")
	_ = eng.HandleChoice(ctx, owner, "test_flow", "purpose", "business")
	_ = eng.HandleText(ctx, owner, "test_flow", "250")

	sess, _ := store.Get(ctx, owner, "test_flow")
	if sess.Status != StatusReady {
		t.Fatalf("status = %s, want ready", sess.Status)
	}

	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavConfirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("submit calls = %d, want 1", sub.calls)
	}
	if sub.seen[0]["routing"] != "123456789" || sub.seen[0]["purpose"] != "business" {
		t.Fatalf("submitted values wrong: %v", sub.seen[0])
	}
	if !strings.Contains(msgr.lastNotice(t), "rcpt-1") {
		t.Fatalf("expected receipt in notice, got %q", msgr.lastNotice(t))
	}

	// Session is gone; a second confirm is a neutral no-op.
	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavConfirm); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("submit calls = %d after duplicate confirm, want 1", sub.calls)
	}
}

func TestConfirmBeforeReadyIsRefused(t *testing.T) {
	eng, msgr, sub, _ := newTestEngine(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavConfirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if sub.calls != 0 {
		t.Fatal("incomplete form must not submit")
	}
	if msgr.lastNotice(t) != noticeNotReady {
		t.Fatalf("expected not-ready notice, got %q", msgr.lastNotice(t))
	}
}

func TestSubmissionFailureIsTerminal(t *testing.T) {
	eng, msgr, sub, store := newTestEngine(t)
	sub.err = &SubmissionError{Message: "insufficient balance"}
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "can")
	_ = eng.HandleText(ctx, owner, "test_flow", "00011")
	_ = eng.HandleChoice(ctx, owner, "test_flow", "purpose", "personal")
	_ = eng.HandleText(ctx, owner, "test_flow", "9000")

	if err := eng.HandleNavigate(ctx, owner, "test_flow", NavConfirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !strings.Contains(msgr.lastNotice(t), "insufficient balance") {
		t.Fatalf("expected upstream message surfaced, got %q", msgr.lastNotice(t))
	}
	if _, err := store.Get(ctx, owner, "test_flow"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("failed submission must discard the session")
	}
	if sub.calls != 1 {
		t.Fatalf("submit calls = %d, want 1 (no retry)", sub.calls)
	}
}

func TestStaleChoicePressIsIgnored(t *testing.T) {
	eng, msgr, _, store := newTestEngine(t)
	schema := testSchema(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	_ = eng.HandleText(ctx, owner, "test_flow", "123456789")
	_ = eng.HandleChoice(ctx, owner, "test_flow", "purpose", "personal")

	prompts, notices := msgr.counts()
	// Duplicate tap on the already-answered purpose keyboard.
	if err := eng.HandleChoice(ctx, owner, "test_flow", "purpose", "personal"); err != nil {
		t.Fatalf("stale choice: %v", err)
	}
	p2, n2 := msgr.counts()
	if p2 != prompts || n2 != notices {
		t.Fatal("stale choice press must be a silent no-op")
	}
	sess, _ := store.Get(ctx, owner, "test_flow")
	if sess.Values["purpose"] != "personal" {
		t.Fatalf("purpose = %q", sess.Values["purpose"])
	}
	if got := schema.Cursor(sess.Values); got != 3 {
		t.Fatalf("cursor = %d, want 3", got)
	}
}

func TestDuplicateTapCannotAnswerNextField(t *testing.T) {
	store := NewMemoryStore(0)
	t.Cleanup(store.Close)
	msgr := &fakeMessenger{}
	sub := &recordingSubmitter{}
	eng := NewEngine(store, msgr)
	// Consecutive choice fields sharing an option key, as in a payout flow
	// where both source of funds and purpose list "salary".
	schema := MustSchema("payout",
		FieldSpec{Key: "source", Prompt: "Source of funds?", Mode: ModeChoice,
			Choices: []Choice{{Key: "salary", Label: "Salary"}, {Key: "savings", Label: "Savings"}}},
		FieldSpec{Key: "purpose", Prompt: "Purpose?", Mode: ModeChoice,
			Choices: []Choice{{Key: "salary", Label: "Salary"}, {Key: "gift", Label: "Gift"}}},
	)
	if err := eng.Register(Flow{Schema: schema, Submit: sub}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx, owner, "payout"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := eng.HandleChoice(ctx, owner, "payout", "source", "salary"); err != nil {
		t.Fatalf("HandleChoice: %v", err)
	}
	prompts, notices := msgr.counts()

	// A laggy double-tap of the source button lands after the flow advanced
	// to purpose, whose options also include "salary".
	if err := eng.HandleChoice(ctx, owner, "payout", "source", "salary"); err != nil {
		t.Fatalf("duplicate tap: %v", err)
	}
	sess, err := store.Get(ctx, owner, "payout")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got, ok := sess.Values["purpose"]; ok {
		t.Fatalf("duplicate tap answered the next field: purpose = %q", got)
	}
	if got := schema.Cursor(sess.Values); got != 1 {
		t.Fatalf("cursor = %d, want 1 (still purpose)", got)
	}
	if p2, n2 := msgr.counts(); p2 != prompts || n2 != notices {
		t.Fatal("duplicate tap must be a silent no-op")
	}
}

func TestStartReplacesInFlightSession(t *testing.T) {
	eng, _, _, store := newTestEngine(t)
	ctx := context.Background()
	mustStart(t, eng)

	_ = eng.HandleText(ctx, owner, "test_flow", "usa")
	mustStart(t, eng)

	sess, err := store.Get(ctx, owner, "test_flow")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Values) != 0 {
		t.Fatalf("expected fresh session, got values %v", sess.Values)
	}
}

func TestNavigateWithoutSessionAcknowledgesNeutrally(t *testing.T) {
	eng, msgr, _, _ := newTestEngine(t)
	if err := eng.HandleNavigate(context.Background(), owner, "test_flow", NavCancel); err != nil {
		t.Fatalf("HandleNavigate: %v", err)
	}
	if msgr.lastNotice(t) != noticeNothingActive {
		t.Fatalf("expected neutral acknowledgment, got %q", msgr.lastNotice(t))
	}
}

func TestUnknownFlowAcknowledgesNeutrally(t *testing.T) {
	eng, msgr, _, _ := newTestEngine(t)
	if err := eng.HandleText(context.Background(), owner, "ghost_flow", "hello"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if msgr.lastNotice(t) != noticeNothingActive {
		t.Fatalf("expected neutral acknowledgment, got %q", msgr.lastNotice(t))
	}
}

func TestConcurrentInputsApplyWithoutLostUpdates(t *testing.T) {
	store := NewMemoryStore(0)
	t.Cleanup(store.Close)
	msgr := &fakeMessenger{}
	sub := &recordingSubmitter{}
	eng := NewEngine(store, msgr)
	schema := MustSchema("pair",
		FieldSpec{Key: "first", Prompt: "first?", Validate: NonEmpty()},
		FieldSpec{Key: "second", Prompt: "second?", Validate: NonEmpty()},
	)
	if err := eng.Register(Flow{Schema: schema, Submit: sub}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx, owner, "pair"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for _, input := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			if err := eng.HandleText(ctx, owner, "pair", text); err != nil {
				t.Errorf("HandleText(%s): %v", text, err)
			}
		}(input)
	}
	wg.Wait()

	sess, err := store.Get(ctx, owner, "pair")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Values) != 2 {
		t.Fatalf("expected both inputs applied, got %v", sess.Values)
	}
	got := map[string]bool{sess.Values["first"]: true, sess.Values["second"]: true}
	if !got["alpha"] || !got["beta"] {
		t.Fatalf("expected alpha and beta stored, got %v", sess.Values)
	}
}
