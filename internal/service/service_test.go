package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-router/internal/classifier"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/policy"
	"github.com/capitalize-ai/support-router/internal/store"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeClassifier struct {
	mu    sync.Mutex
	res   classifier.Result
	calls int
	reqs  []classifier.Request
}

func (f *fakeClassifier) Classify(_ context.Context, req classifier.Request) classifier.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.res
}

func (f *fakeClassifier) set(res classifier.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res = res
}

func (f *fakeClassifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.ConversationEvent
	err    error
}

func (f *fakeEvents) PublishEvent(_ context.Context, e *model.ConversationEvent) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return uint64(len(f.events)), f.err
}

func (f *fakeEvents) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeDelivery struct {
	err  error
	sent []string
}

func (f *fakeDelivery) Deliver(_ context.Context, conv *model.Conversation, text string) error {
	f.sent = append(f.sent, conv.UserID+":"+text)
	return f.err
}

type fakeAgents struct {
	id  string
	err error
}

func (f fakeAgents) SelectAgent(context.Context, *model.Conversation) (string, error) {
	return f.id, f.err
}

// failingStore wraps a store and fails updates after a number of successes.
type failingStore struct {
	store.Store
	mu        sync.Mutex
	okUpdates int
	err       error
}

func (f *failingStore) Update(ctx context.Context, sessionID string, fn store.UpdateFunc) (*model.Conversation, error) {
	f.mu.Lock()
	if f.okUpdates == 0 {
		f.okUpdates = -1
		f.mu.Unlock()
		return nil, f.err
	}
	f.okUpdates--
	f.mu.Unlock()
	return f.Store.Update(ctx, sessionID, fn)
}

type harness struct {
	svc      *Service
	store    *store.MemoryStore
	cls      *fakeClassifier
	events   *fakeEvents
	delivery *fakeDelivery
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(),
		cls:      &fakeClassifier{res: classifier.Result{Text: "Xin chào!", Intent: "greeting", Confidence: 0.9}},
		events:   &fakeEvents{},
		delivery: &fakeDelivery{},
	}
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	deps := Deps{
		Store:      h.store,
		Classifier: h.cls,
		Policy:     policy.New(policy.DefaultRules()),
		Events:     h.events,
		Delivery:   h.delivery,
		Logger:     logger.NewNop(),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	}
	for _, o := range opts {
		o(&deps)
	}
	h.svc = New(deps)
	return h
}

func (h *harness) session(t *testing.T) string {
	t.Helper()
	id, err := h.svc.CreateSession(context.Background(), "u1", model.PlatformWeb)
	require.NoError(t, err)
	return id
}

func (h *harness) conv(t *testing.T, id string) *model.Conversation {
	t.Helper()
	c, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), err.Error())
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestHandleMessage_BotReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)

	res, err := h.svc.HandleMessage(ctx, "xin chào", id, "")
	require.NoError(t, err)
	require.NotNil(t, res.Text)
	require.Equal(t, "Xin chào!", *res.Text)
	require.False(t, res.Escalated)
	require.False(t, res.NoReply)
	require.Equal(t, model.StatusActive, res.Status)
	require.Equal(t, model.Intent("greeting"), res.Intent)

	c := h.conv(t, id)
	require.Len(t, c.Messages, 2)
	require.Equal(t, model.SenderUser, c.Messages[0].Sender)
	require.Equal(t, model.Intent("greeting"), *c.Messages[0].Intent)
	require.False(t, c.Messages[0].Metadata.NeedReview)
	require.Equal(t, model.SenderBot, c.Messages[1].Sender)
	require.False(t, c.Messages[1].Timestamp.Before(c.Messages[0].Timestamp))

	require.Equal(t, 1, h.cls.count())
	require.Equal(t, model.PlatformWeb, h.cls.reqs[0].Platform)
	require.Equal(t, "u1", h.cls.reqs[0].UserID)
}

func TestHandleMessage_UrgentKeywordEscalatesDespiteConfidence(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "Đây là vấn đề khẩn cấp", Intent: "general", Confidence: 0.9})
	id := h.session(t)

	res, err := h.svc.HandleMessage(context.Background(), "khẩn cấp, cần hỗ trợ ngay", id, "")
	require.NoError(t, err)
	require.True(t, res.Escalated)
	require.False(t, res.NoReply)
	require.Equal(t, policy.DefaultRules().HandoffNotice, *res.Text)

	c := h.conv(t, id)
	require.Equal(t, model.StatusEscalated, c.Status)
	require.Equal(t, policy.ReasonUrgentKeyword, c.EscalationReason)
	require.Equal(t, model.PriorityUrgent, c.Priority)
	require.NotNil(t, c.EscalatedAt)
	require.Len(t, c.Messages, 2)
	require.Equal(t, policy.DefaultRules().HandoffNotice, c.Messages[1].Text)

	require.Equal(t, []model.EventType{model.EventTypeEscalated}, h.events.types())
}

func TestHandleMessage_LowConfidenceEscalates(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "Không rõ", Intent: "other", Confidence: 0.1})
	id := h.session(t)

	res, err := h.svc.HandleMessage(context.Background(), "asdfgh", id, "")
	require.NoError(t, err)
	require.True(t, res.Escalated)

	c := h.conv(t, id)
	require.Equal(t, model.StatusEscalated, c.Status)
	require.Equal(t, model.PriorityMedium, c.Priority)
	require.Equal(t, policy.ReasonLowConfidence, c.EscalationReason)
	require.True(t, c.Messages[0].Metadata.NeedReview)
}

func TestHandleMessage_FallbackEscalates(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "busy", Intent: model.IntentUnknown, Confidence: 0, Fallback: true})
	id := h.session(t)

	res, err := h.svc.HandleMessage(context.Background(), "hello", id, "")
	require.NoError(t, err)
	require.True(t, res.Escalated)
	require.Equal(t, model.StatusEscalated, h.conv(t, id).Status)
}

func TestHandleMessage_EscalatedConversationIsSilent(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "x", Confidence: 0.1})
	id := h.session(t)
	ctx := context.Background()

	_, err := h.svc.HandleMessage(ctx, "first", id, "")
	require.NoError(t, err)
	before := h.conv(t, id)
	require.Equal(t, 1, h.cls.count())

	for i := 0; i < 3; i++ {
		res, err := h.svc.HandleMessage(ctx, fmt.Sprintf("again %d", i), id, "")
		require.NoError(t, err)
		require.True(t, res.NoReply)
		require.True(t, res.Escalated)
		require.Nil(t, res.Text)

		after := h.conv(t, id)
		require.Len(t, after.Messages, len(before.Messages)+i+1)
		require.Equal(t, before.CountBySender(model.SenderBot), after.CountBySender(model.SenderBot))
		require.Equal(t, model.StatusEscalated, after.Status)
		require.Equal(t, before.Priority, after.Priority)
	}
	require.Equal(t, 1, h.cls.count())
}

func TestHandleMessage_ResolvedIntentResolves(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "Rất vui được giúp bạn", Intent: model.IntentResolved, Confidence: 0.95})
	id := h.session(t)

	res, err := h.svc.HandleMessage(context.Background(), "cảm ơn, xong rồi", id, "")
	require.NoError(t, err)
	require.False(t, res.Escalated)
	require.Equal(t, model.StatusResolved, res.Status)

	c := h.conv(t, id)
	require.Equal(t, model.StatusResolved, c.Status)
	require.NotNil(t, c.ResolvedAt)
	require.Equal(t, []model.EventType{model.EventTypeResolved}, h.events.types())
}

func TestHandleMessage_TerminalConversationGetsReplyWithoutTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)
	_, err := h.svc.Close(ctx, id)
	require.NoError(t, err)

	h.cls.set(classifier.Result{Text: "x", Intent: model.IntentEscalate, Confidence: 0.05})
	res, err := h.svc.HandleMessage(ctx, "urgent!", id, "")
	require.NoError(t, err)
	require.False(t, res.Escalated)
	require.Equal(t, model.StatusClosed, res.Status)
	require.Equal(t, model.StatusClosed, h.conv(t, id).Status)
}

func TestHandleMessage_ReviewFlagThreshold(t *testing.T) {
	for _, tt := range []struct {
		confidence float64
		flagged    bool
	}{
		{0.3, true},
		{0.69, true},
		{0.7, false},
		{0.99, false},
	} {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			h := newHarness(t)
			h.cls.set(classifier.Result{Text: "ok", Intent: "billing", Confidence: tt.confidence})
			id := h.session(t)

			_, err := h.svc.HandleMessage(context.Background(), "hoá đơn", id, "")
			require.NoError(t, err)
			require.Equal(t, tt.flagged, h.conv(t, id).Messages[0].Metadata.NeedReview)
		})
	}
}

func TestHandleMessage_AgentSelection(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Agents = fakeAgents{id: "agent-7"} })
	h.cls.set(classifier.Result{Text: "x", Intent: model.IntentEscalate, Confidence: 0.8})
	id := h.session(t)

	_, err := h.svc.HandleMessage(context.Background(), "cho tôi gặp nhân viên", id, "")
	require.NoError(t, err)
	c := h.conv(t, id)
	require.Equal(t, "agent-7", c.AssignedAgent)
	require.Equal(t, policy.ReasonUserRequested, c.EscalationReason)

	h = newHarness(t, func(d *Deps) { d.Agents = fakeAgents{err: errors.New("directory down")} })
	h.cls.set(classifier.Result{Text: "x", Intent: model.IntentEscalate, Confidence: 0.8})
	id = h.session(t)
	_, err = h.svc.HandleMessage(context.Background(), "help", id, "")
	require.NoError(t, err)
	require.Empty(t, h.conv(t, id).AssignedAgent)
}

func TestHandleMessage_PersistenceFailureRecordsApology(t *testing.T) {
	mem := store.NewMemoryStore()
	fs := &failingStore{Store: mem, okUpdates: 1, err: errors.New("disk full")}
	h := newHarness(t, func(d *Deps) { d.Store = fs })
	id := h.session(t)

	_, err := h.svc.HandleMessage(context.Background(), "hello", id, "")
	requireKind(t, err, KindPersistence)

	c, err := mem.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, c.Messages, 2)
	require.Equal(t, model.SenderUser, c.Messages[0].Sender)
	require.Equal(t, policy.DefaultRules().ApologyText, c.Messages[1].Text)
	require.Equal(t, model.StatusActive, c.Status)
}

func TestHandleMessage_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandleMessage(context.Background(), "   ", "s", "")
	requireKind(t, err, KindValidation)

	_, err = h.svc.HandleMessage(context.Background(), "hi", "missing", "")
	requireKind(t, err, KindNotFound)
	require.Zero(t, h.cls.count())
}

func TestHandleMessage_ConcurrentMessagesEscalateOnce(t *testing.T) {
	h := newHarness(t)
	h.cls.set(classifier.Result{Text: "x", Confidence: 0.1})
	id := h.session(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.HandleMessage(context.Background(), fmt.Sprintf("msg %d", i), id, "")
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c := h.conv(t, id)
	require.Equal(t, n, c.CountBySender(model.SenderUser))
	require.Equal(t, 1, c.CountBySender(model.SenderBot))
	require.Equal(t, 1, h.cls.count())
	require.Equal(t, []model.EventType{model.EventTypeEscalated}, h.events.types())
	require.Zero(t, h.svc.locks.size())
}

// ---------------------------------------------------------------------------
// Staff operations
// ---------------------------------------------------------------------------

func TestStaffReply_Ownership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)

	_, err := h.svc.Assign(ctx, id, "A")
	require.NoError(t, err)

	_, err = h.svc.StaffReply(ctx, id, "hi from B", "B")
	requireKind(t, err, KindOwnership)

	res, err := h.svc.StaffReply(ctx, id, "hi from A", "A")
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, model.PlatformWeb, res.Platform)

	c := h.conv(t, id)
	require.Len(t, c.Messages, 1)
	require.Equal(t, model.SenderAgent, c.Messages[0].Sender)
	require.Equal(t, "A", c.Messages[0].Metadata.AgentID)
	require.Equal(t, []string{"u1:hi from A"}, h.delivery.sent)
}

func TestStaffReply_DeliveryFailureKeepsMessage(t *testing.T) {
	h := newHarness(t)
	h.delivery.err = errors.New("graph api 500")
	id := h.session(t)

	res, err := h.svc.StaffReply(context.Background(), id, "hello", "A")
	require.NoError(t, err)
	require.False(t, res.Delivered)
	require.Len(t, h.conv(t, id).Messages, 1)
}

func TestAssign_EscalatesActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)

	c, err := h.svc.Assign(ctx, id, "A")
	require.NoError(t, err)
	require.Equal(t, model.StatusEscalated, c.Status)
	require.Equal(t, model.PriorityMedium, c.Priority)
	require.Equal(t, policy.ReasonAssignedToAgent, c.EscalationReason)

	c, err = h.svc.Assign(ctx, id, "B")
	require.NoError(t, err)
	require.Equal(t, "B", c.AssignedAgent)

	_, err = h.svc.Assign(ctx, id, " ")
	requireKind(t, err, KindValidation)
	_, err = h.svc.Assign(ctx, "missing", "A")
	requireKind(t, err, KindNotFound)
}

func TestCloseAndResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)

	c, err := h.svc.Resolve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusResolved, c.Status)
	resolvedAt := *c.ResolvedAt

	c, err = h.svc.Close(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, c.Status)
	require.Equal(t, resolvedAt, *c.ResolvedAt)

	_, err = h.svc.Resolve(ctx, id)
	requireKind(t, err, KindValidation)

	require.Equal(t, []model.EventType{model.EventTypeResolved, model.EventTypeClosed}, h.events.types())
}

func TestEventPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("nats down")
	id := h.session(t)

	_, err := h.svc.Close(context.Background(), id)
	require.NoError(t, err)
}

func TestRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.session(t)

	_, err := h.svc.Rate(ctx, id, 6)
	requireKind(t, err, KindValidation)
	_, err = h.svc.Rate(ctx, id, 0)
	requireKind(t, err, KindValidation)

	_, err = h.svc.Rate(ctx, id, 4)
	require.NoError(t, err)
	require.Equal(t, 4, *h.conv(t, id).Satisfaction)
	require.Equal(t, 4, *h.conv(t, id).Satisfaction)

	_, err = h.svc.Rate(ctx, id, 4)
	require.NoError(t, err)
	_, err = h.svc.Rate(ctx, id, 2)
	requireKind(t, err, KindValidation)
	require.Equal(t, 4, *h.conv(t, id).Satisfaction)
}

// ---------------------------------------------------------------------------
// Sessions and listing
// ---------------------------------------------------------------------------

func TestCreateSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.CreateSession(ctx, "", "")
	require.NoError(t, err)
	c := h.conv(t, id)
	require.Equal(t, model.PlatformWeb, c.Platform)
	require.Equal(t, model.StatusActive, c.Status)

	_, err = h.svc.CreateSession(ctx, "", "sms")
	requireKind(t, err, KindValidation)

	_, err = h.svc.History(ctx, "missing")
	requireKind(t, err, KindNotFound)
}

func TestSessionForExternalUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.SessionForExternalUser(ctx, model.PlatformFacebook, "psid-1")
	require.NoError(t, err)
	again, err := h.svc.SessionForExternalUser(ctx, model.PlatformFacebook, "psid-1")
	require.NoError(t, err)
	require.Equal(t, first.SessionID, again.SessionID)

	_, err = h.svc.Close(ctx, first.SessionID)
	require.NoError(t, err)
	fresh, err := h.svc.SessionForExternalUser(ctx, model.PlatformFacebook, "psid-1")
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, fresh.SessionID)
	require.Equal(t, model.PlatformFacebook, fresh.Platform)
}

func TestSessionForExternalUser_ConcurrentFirstContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := h.svc.SessionForExternalUser(ctx, model.PlatformTelegram, "chat-7")
			if err == nil {
				ids[i] = conv.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	resp, err := h.svc.List(ctx, model.ConversationFilter{UserID: "chat-7"})
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 1)
	require.Equal(t, 0, h.svc.locks.size())
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.session(t)
	b := h.session(t)
	_, err := h.svc.Assign(ctx, b, "A")
	require.NoError(t, err)

	all, err := h.svc.List(ctx, model.ConversationFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, all.Total)
	require.Equal(t, b, all.Conversations[0].SessionID)
	require.Equal(t, a, all.Conversations[1].SessionID)

	escalated, err := h.svc.List(ctx, model.ConversationFilter{Status: model.StatusEscalated, AssignedAgent: "A"})
	require.NoError(t, err)
	require.Equal(t, 1, escalated.Total)

	_, err = h.svc.List(ctx, model.ConversationFilter{Status: "pending"})
	requireKind(t, err, KindValidation)
}

// ---------------------------------------------------------------------------
// Review
// ---------------------------------------------------------------------------

func TestLabelIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cls.set(classifier.Result{Text: "ok", Intent: "billing", Confidence: 0.5})
	id := h.session(t)

	_, err := h.svc.HandleMessage(ctx, "hoá đơn sai", id, "")
	require.NoError(t, err)

	items, err := h.svc.ListNeedsReview(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, id, items[0].SessionID)
	require.Equal(t, "hoá đơn sai", items[0].Text)

	for i := 0; i < 2; i++ {
		msg, err := h.svc.LabelIntent(ctx, items[0].MessageID, "refund")
		require.NoError(t, err)
		require.Equal(t, model.Intent("refund"), *msg.Intent)
		require.False(t, msg.Metadata.NeedReview)
	}

	items, err = h.svc.ListNeedsReview(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = h.svc.LabelIntent(ctx, "missing", "refund")
	requireKind(t, err, KindNotFound)
	_, err = h.svc.LabelIntent(ctx, "x", "")
	requireKind(t, err, KindValidation)

	samples, err := h.svc.TrainingSamples(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.TrainingSample{{Text: "hoá đơn sai", Intent: "refund"}}, samples)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	empty, err := h.svc.Stats(ctx, "")
	require.NoError(t, err)
	require.Equal(t, &model.Stats{Window: "7d"}, empty)

	a := h.session(t)
	b := h.session(t)
	h.session(t)
	_, err = h.svc.Resolve(ctx, a)
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, b, "A")
	require.NoError(t, err)
	_, err = h.svc.Rate(ctx, a, 5)
	require.NoError(t, err)
	_, err = h.svc.Rate(ctx, b, 2)
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx, "1d")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalConversations)
	require.Equal(t, 1, stats.ResolvedConversations)
	require.Equal(t, 1, stats.EscalatedConversations)
	require.InDelta(t, 3.5, stats.AvgSatisfaction, 1e-9)

	_, err = h.svc.Stats(ctx, "90d")
	requireKind(t, err, KindValidation)
}

func TestStats_WindowExcludesOlder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := model.NewConversation("old", "", model.PlatformWeb, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, h.store.Create(ctx, old))
	h.session(t)

	week, err := h.svc.Stats(ctx, "7d")
	require.NoError(t, err)
	require.Equal(t, 1, week.TotalConversations)

	month, err := h.svc.Stats(ctx, "30d")
	require.NoError(t, err)
	require.Equal(t, 2, month.TotalConversations)
}

func TestSessionLocksAreReleased(t *testing.T) {
	l := newSessionLocks()
	unlock := l.Lock("a")
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Lock("a")()
	}()
	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
	require.Zero(t, l.size())
}
