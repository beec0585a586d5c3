package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/clarify"
	"github.com/lebron1212/aos-dev-team-sub000/internal/command"
	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/feedback"
	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
	"go.uber.org/zap"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []*gateway.OutboundMessage
	fail bool
}

func (r *recordingTransport) Send(_ context.Context, msg *gateway.OutboundMessage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return "", gateway.ErrTransport
	}
	r.sent = append(r.sent, msg)
	return fmt.Sprintf("reply-%d", len(r.sent)), nil
}

func (r *recordingTransport) messages() []*gateway.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*gateway.OutboundMessage(nil), r.sent...)
}

type forwarded struct {
	mu  sync.Mutex
	got []string
}

func (f *forwarded) Name() string { return "test" }

func (f *forwarded) Forward(_ context.Context, to delegation.Specialist, h delegation.Handoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, to.Name+": "+h.Utterance)
	return nil
}

type harness struct {
	orch        *Orchestrator
	items       *workitem.Registry
	specialists *delegation.Registry
	correlator  *feedback.Correlator
	learning    *feedback.MemoryStore
	contexts    *conversation.Store
	transport   *recordingTransport
	forwarder   *forwarded
}

func newHarness(t *testing.T, o oracle.Oracle) *harness {
	t.Helper()
	logger := zap.NewNop()
	if o == nil {
		o = oracle.Unavailable
	}

	h := &harness{
		items:       workitem.NewRegistry(nil, logger),
		specialists: delegation.NewRegistry(nil, logger),
		learning:    &feedback.MemoryStore{},
		contexts:    conversation.NewStore(conversation.Options{HistoryTurns: 20, RecentItems: 5}, logger),
		transport:   &recordingTransport{},
		forwarder:   &forwarded{},
	}
	h.correlator = feedback.NewCorrelator(feedback.NewCache(feedback.DefaultCapacity), h.learning, o, logger)

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, h.items, gateway.NewGateway(logger))

	h.orch = New(Deps{
		Classifier: intent.NewChain(0.35, logger, intent.NewOracleClassifier(o), intent.KeywordClassifier{}),
		Clarifier:  clarify.New(o, 3, logger),
		Contexts:   h.contexts,
		WorkItems:  h.items,
		Delegation: delegation.NewResolver(h.specialists, o, logger, h.forwarder),
		Feedback:   h.correlator,
		Oracle:     o,
		Transport:  h.transport,
		Commands:   commands,
		Admins:     []string{"admin"},
		Logger:     logger,
	})
	t.Cleanup(h.orch.Wait)
	return h
}

func (h *harness) process(user, id, text string) Response {
	return h.orch.ProcessRequest(context.Background(), Request{
		Utterance: text,
		UserID:    user,
		MessageID: id,
		Origin:    gateway.MessageRef{Platform: "rest", ChannelID: "C1", MessageID: id},
	})
}

func TestBuildWithOracleDownCreatesWorkItem(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.process("u1", "m1", "build a contact form")
	if resp.Kind != KindCreated {
		t.Fatalf("kind = %s (%q)", resp.Kind, resp.Text)
	}
	if resp.Intent == nil || resp.Intent.Category != intent.Build {
		t.Fatalf("intent = %+v", resp.Intent)
	}
	w, ok := h.items.Get(resp.WorkItemID)
	if !ok {
		t.Fatalf("work item %s not retrievable", resp.WorkItemID)
	}
	if w.Status != workitem.StatusPending || w.Progress != 0 {
		t.Errorf("status = %s, progress = %d", w.Status, w.Progress)
	}
	if !strings.Contains(resp.Text, w.ID) {
		t.Errorf("acknowledgement %q should contain %s", resp.Text, w.ID)
	}
	if w.Origin.ChannelID != "C1" || w.OriginalRequest != "build a contact form" {
		t.Errorf("origin not carried: %+v", w)
	}
	cc, _ := h.contexts.View("u1")
	if cc.LastWorkItem != w.ID {
		t.Errorf("last work item = %q", cc.LastWorkItem)
	}
}

func TestPauseThatUsesLastWorkItem(t *testing.T) {
	h := newHarness(t, nil)

	created := h.process("u1", "m1", "build a contact form")
	id := created.WorkItemID
	if _, err := h.items.Advance(id, workitem.StatusAnalyzing, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := h.items.Advance(id, workitem.StatusBuilding, 0); err != nil {
		t.Fatal(err)
	}

	resp := h.process("u1", "m2", "pause that")
	if resp.Kind != KindManaged {
		t.Fatalf("kind = %s (%q)", resp.Kind, resp.Text)
	}
	w, _ := h.items.Get(id)
	if w.Status != workitem.StatusPaused || w.PausedAt == nil {
		t.Fatalf("status = %s, pausedAt = %v", w.Status, w.PausedAt)
	}
	if w.ResumeTo != workitem.StatusBuilding || w.Progress != 40 {
		t.Errorf("resumeTo = %s, progress = %d", w.ResumeTo, w.Progress)
	}
	if w.PausedFor(w.PausedAt.Add(time.Minute)) < time.Minute {
		t.Error("paused time should accumulate")
	}
}

func TestManageWithoutTargetAsksWhich(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.process("u1", "m1", "pause that")
	if resp.Kind != KindError || resp.Text != ReplyWhichWorkItem {
		t.Errorf("got %s %q", resp.Kind, resp.Text)
	}
}

func TestThumbsDownReactionRecordsNegative(t *testing.T) {
	h := newHarness(t, nil)
	h.correlator.Track("M1", "u1", "build X")
	h.correlator.Respond("M1", "done")

	h.orch.HandleReaction(context.Background(), &gateway.ReactionEvent{
		Platform: "slack", ChannelID: "C1", MessageID: "M1", UserID: "u1", Emoji: "thumbsdown", BotAuthored: true,
	})

	recs := h.learning.Records()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].FeedbackType != feedback.Negative || recs[0].Input != "build X" || recs[0].Response != "done" {
		t.Errorf("record = %+v", recs[0])
	}
	if n := len(h.transport.messages()); n != 0 {
		t.Errorf("no follow-up expected, sent %d", n)
	}
}

func TestSuggestionReactionThenReply(t *testing.T) {
	h := newHarness(t, nil)
	h.correlator.Track("M1", "u1", "build X")
	h.correlator.Respond("M1", "done")

	h.orch.HandleReaction(context.Background(), &gateway.ReactionEvent{
		Platform: "slack", ChannelID: "C1", MessageID: "M1", UserID: "u1", Emoji: ":pencil2:", BotAuthored: true,
	})
	sent := h.transport.messages()
	if len(sent) != 1 || sent[0].Content != feedback.SuggestionPrompt {
		t.Fatalf("prompt not sent: %+v", sent)
	}

	resp := h.process("u1", "m2", "use a shorter form")
	if resp.Kind != KindFeedback {
		t.Fatalf("kind = %s", resp.Kind)
	}
	recs := h.learning.Records()
	if len(recs) != 1 || recs[0].FeedbackType != feedback.Suggestion || recs[0].Suggestion != "use a shorter form" {
		t.Fatalf("records = %+v", recs)
	}
	if len(h.items.ForUser("u1")) != 0 {
		t.Error("a consumed suggestion must not be routed")
	}
}

func TestDelegatesToOnlineSpecialist(t *testing.T) {
	o := oracle.Func(func(_ context.Context, p oracle.Prompt) (string, error) {
		if p.Purpose == oracle.PurposeDelegate {
			return `{"delegate":true,"specialistName":"Dashboard","reason":"owns cost metrics","confidence":0.9}`, nil
		}
		return "", oracle.ErrUnavailable
	})
	h := newHarness(t, o)
	if err := h.specialists.Register(context.Background(), delegation.Specialist{
		Name: "Dashboard", Purpose: "cost metrics", ChannelID: "D1", IsOnline: true,
	}); err != nil {
		t.Fatal(err)
	}

	resp := h.process("u1", "m1", "what's our API cost today")
	if resp.Kind != KindDelegated || resp.Delegation == nil || resp.Delegation.Specialist != "Dashboard" {
		t.Fatalf("resp = %+v", resp)
	}
	h.orch.Wait()

	h.forwarder.mu.Lock()
	got := append([]string(nil), h.forwarder.got...)
	h.forwarder.mu.Unlock()
	if len(got) != 1 || got[0] != "Dashboard: what's our API cost today" {
		t.Errorf("forwarded = %v", got)
	}
	if n := len(h.items.Active()); n != 0 {
		t.Errorf("no work item expected, got %d", n)
	}
}

func TestCorrelationCacheKeepsTwentyMostRecent(t *testing.T) {
	h := newHarness(t, nil)
	for i := 1; i <= 21; i++ {
		h.process("u1", fmt.Sprintf("m%d", i), "hello")
	}
	h.orch.Wait()

	cache := h.correlator.Cache()
	if cache.Len() != 20 {
		t.Fatalf("cache holds %d entries", cache.Len())
	}
	if _, ok := cache.Lookup("m1"); ok {
		t.Error("oldest message should be evicted")
	}
	if ex, ok := cache.Lookup("m21"); !ok || ex.Response == "" {
		t.Errorf("newest message = %+v, %v", ex, ok)
	}

	h.orch.HandleReaction(context.Background(), &gateway.ReactionEvent{
		MessageID: "m1", UserID: "u1", Emoji: "+1", BotAuthored: true,
	})
	if n := len(h.learning.Records()); n != 0 {
		t.Errorf("evicted message must not resolve, got %d records", n)
	}
}

func TestClarificationRoundTrip(t *testing.T) {
	h := newHarness(t, nil)

	first := h.process("u1", "m1", "build a dashboard with charts and filters and export")
	if first.Kind != KindClarifying || first.Text != clarify.GenericQuestion {
		t.Fatalf("first = %s %q", first.Kind, first.Text)
	}
	cc, _ := h.contexts.View("u1")
	if !cc.Gathering {
		t.Fatal("context should be gathering")
	}

	second := h.process("u1", "m2", "it should show weekly sales")
	if second.Kind != KindCreated {
		t.Fatalf("second = %s %q", second.Kind, second.Text)
	}
	w, _ := h.items.Get(second.WorkItemID)
	if !strings.Contains(w.Description, "(details: it should show weekly sales)") {
		t.Errorf("description = %q", w.Description)
	}
	if w.OriginalRequest != "build a dashboard with charts and filters and export" {
		t.Errorf("original request = %q", w.OriginalRequest)
	}
	cc, _ = h.contexts.View("u1")
	if cc.Gathering || cc.OutstandingQuestion != "" {
		t.Errorf("clarification not reset: %+v", cc)
	}
}

func TestModifyCreatesChildItem(t *testing.T) {
	h := newHarness(t, nil)
	parent := h.process("u1", "m1", "build a contact form")

	resp := h.process("u1", "m2", "update it to add a captcha")
	if resp.Kind != KindCreated {
		t.Fatalf("kind = %s (%q)", resp.Kind, resp.Text)
	}
	child, _ := h.items.Get(resp.WorkItemID)
	if child.ParentWorkItem != parent.WorkItemID {
		t.Errorf("parent = %q, want %q", child.ParentWorkItem, parent.WorkItemID)
	}
	if child.Status != workitem.StatusPending || child.Progress != 0 {
		t.Errorf("child = %s %d", child.Status, child.Progress)
	}
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string, intent.Hints) intent.Scored {
	panic("boom")
}

func TestPanicBecomesReply(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.classifier = panickingClassifier{}

	resp := h.process("u1", "m1", "build a contact form")
	if resp.Kind != KindError || resp.Text != ReplyInternalError {
		t.Fatalf("resp = %+v", resp)
	}
	if ex, ok := h.correlator.Cache().Lookup("m1"); !ok || ex.Response != ReplyInternalError {
		t.Errorf("cache entry = %+v", ex)
	}
	// the user's context must have been released
	done := make(chan struct{})
	go func() {
		_, release := h.contexts.Acquire("u1")
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("context still locked after panic")
	}
}

func TestUnrecognizedGetsFixedReply(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.process("u1", "m1", "zxqv blorp")
	if resp.Text != ReplyNotUnderstood {
		t.Errorf("got %q", resp.Text)
	}
}

func TestQuestionFallsBackWhenOracleDown(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.process("u1", "m1", "why is the sky blue?")
	if resp.Kind != KindAnswered || resp.Text != ReplyQuestion {
		t.Errorf("got %s %q", resp.Kind, resp.Text)
	}
}

func TestHandleRepliesAndAliases(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.orch.Handle(ctx, &gateway.InboundMessage{
		Platform: "slack", ChannelID: "C1", MessageID: "m1", UserID: "u1", Content: "build a contact form",
	})
	sent := h.transport.messages()
	if len(sent) != 1 || sent[0].ReplyTo != "m1" || sent[0].ChannelID != "C1" {
		t.Fatalf("sent = %+v", sent)
	}

	h.orch.HandleReaction(ctx, &gateway.ReactionEvent{
		Platform: "slack", ChannelID: "C1", MessageID: "reply-1", UserID: "u1", Emoji: "👍", BotAuthored: true,
	})
	recs := h.learning.Records()
	if len(recs) != 1 || recs[0].MessageID != "m1" || recs[0].FeedbackType != feedback.Positive {
		t.Errorf("records = %+v", recs)
	}
}

func TestHandleRoutesSlashCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Handle(context.Background(), &gateway.InboundMessage{
		Platform: "slack", ChannelID: "C1", MessageID: "m1", UserID: "u1", Content: "/work",
	})
	sent := h.transport.messages()
	if len(sent) != 1 || sent[0].Content != "You have no work items." {
		t.Fatalf("sent = %+v", sent)
	}
	if _, ok := h.correlator.Cache().Lookup("m1"); ok {
		t.Error("commands should not be tracked for feedback")
	}
}

func TestTransportFailureStillCreatesItem(t *testing.T) {
	h := newHarness(t, nil)
	h.transport.fail = true
	h.orch.Handle(context.Background(), &gateway.InboundMessage{
		Platform: "slack", ChannelID: "C1", MessageID: "m1", UserID: "u1", Content: "build a contact form",
	})
	if n := len(h.items.ForUser("u1")); n != 1 {
		t.Errorf("got %d items", n)
	}
}
