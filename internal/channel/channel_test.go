package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  [][2]string
	err   error
	delay time.Duration
}

func (r *recordingSender) Send(ctx context.Context, recipient, text string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, [2]string{recipient, text})
	return r.err
}

func conv(platform model.Platform, userID string) *model.Conversation {
	return &model.Conversation{SessionID: "sess-1", UserID: userID, Platform: platform}
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func TestDispatcher_RoutesByPlatform(t *testing.T) {
	fb := &recordingSender{}
	web := &recordingSender{}
	d := NewDispatcher(time.Second, logger.NewNop())
	d.Register(model.PlatformFacebook, fb)
	d.Register(model.PlatformWeb, web)

	require.NoError(t, d.Deliver(context.Background(), conv(model.PlatformFacebook, "psid"), "hi"))
	require.NoError(t, d.Deliver(context.Background(), conv(model.PlatformWeb, "u1"), "hello"))

	require.Equal(t, [][2]string{{"psid", "hi"}}, fb.sent)
	require.Equal(t, [][2]string{{"sess-1", "hello"}}, web.sent)
	require.True(t, d.Supports(model.PlatformWeb))
	require.False(t, d.Supports(model.PlatformWhatsApp))
}

func TestDispatcher_Failures(t *testing.T) {
	d := NewDispatcher(20*time.Millisecond, logger.NewNop())
	d.Register(model.PlatformTelegram, &recordingSender{err: errors.New("403 bot blocked")})
	d.Register(model.PlatformFacebook, &recordingSender{delay: 200 * time.Millisecond})

	err := d.Deliver(context.Background(), conv(model.PlatformWhatsApp, "x"), "hi")
	require.ErrorIs(t, err, ErrUnsupported)

	err = d.Deliver(context.Background(), conv(model.PlatformTelegram, ""), "hi")
	require.ErrorIs(t, err, ErrNoRecipient)

	err = d.Deliver(context.Background(), conv(model.PlatformTelegram, "42"), "hi")
	require.ErrorContains(t, err, "bot blocked")

	start := time.Now()
	err = d.Deliver(context.Background(), conv(model.PlatformFacebook, "psid"), "hi")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Facebook
// ---------------------------------------------------------------------------

func TestFacebook_Send(t *testing.T) {
	var got fbSendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"recipient_id":"psid","message_id":"m1"}`))
	}))
	defer srv.Close()

	fb := NewFacebook("page-token", srv.URL, srv.Client())
	require.NoError(t, fb.Send(context.Background(), "psid", "Xin chào"))
	require.Equal(t, "Bearer page-token", auth)
	require.Equal(t, "psid", got.Recipient.ID)
	require.Equal(t, "Xin chào", got.Message.Text)
}

func TestFacebook_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	err := NewFacebook("t", srv.URL, nil).Send(context.Background(), "psid", "x")
	require.ErrorContains(t, err, "400")
	require.ErrorContains(t, err, "invalid recipient")

	err = NewFacebook("", srv.URL, nil).Send(context.Background(), "psid", "x")
	require.ErrorContains(t, err, "not configured")
}

// ---------------------------------------------------------------------------
// Telegram
// ---------------------------------------------------------------------------

func TestTelegram_Send(t *testing.T) {
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Support","username":"support_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			chatID = r.FormValue("chat_id")
			text = r.FormValue("text")
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", time.Second, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, tg.Send(context.Background(), "42", "hello"))
	require.Equal(t, "42", chatID)
	require.Equal(t, "hello", text)

	require.Error(t, tg.Send(context.Background(), "not-a-number", "hello"))
}

func TestTelegram_SendIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Support","username":"support_bot"}}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", 50*time.Millisecond, logger.NewNop())
	require.NoError(t, err)

	start := time.Now()
	require.Error(t, tg.Send(context.Background(), "42", "hello"))
	require.Less(t, time.Since(start), time.Second)
}

// ---------------------------------------------------------------------------
// Web
// ---------------------------------------------------------------------------

type fakePublisher struct {
	msgs []model.OutboundMessage
	err  error
}

func (f *fakePublisher) PublishReply(_ context.Context, msg *model.OutboundMessage) (uint64, error) {
	f.msgs = append(f.msgs, *msg)
	return uint64(len(f.msgs)), f.err
}

func TestWeb_Send(t *testing.T) {
	p := &fakePublisher{}
	w := NewWeb(p, model.SenderAgent)
	require.NoError(t, w.Send(context.Background(), "sess-1", "on it"))
	require.Len(t, p.msgs, 1)
	require.Equal(t, "sess-1", p.msgs[0].SessionID)
	require.Equal(t, model.SenderAgent, p.msgs[0].Sender)

	p.err = errors.New("no responders")
	require.Error(t, w.Send(context.Background(), "sess-1", "again"))
}

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

type fakeRouter struct {
	conv   *model.Conversation
	result *model.RouterResult
	err    error
	texts  []string
}

func (f *fakeRouter) SessionForExternalUser(_ context.Context, platform model.Platform, userID string) (*model.Conversation, error) {
	if f.conv == nil {
		f.conv = &model.Conversation{SessionID: "sess-new", UserID: userID, Platform: platform}
	}
	return f.conv, nil
}

func (f *fakeRouter) HandleMessage(_ context.Context, text, sessionID, userID string) (*model.RouterResult, error) {
	f.texts = append(f.texts, text)
	return f.result, f.err
}

func TestRelay(t *testing.T) {
	reply := "Chào bạn"
	sender := &recordingSender{}
	d := NewDispatcher(time.Second, logger.NewNop())
	d.Register(model.PlatformFacebook, sender)

	r := &fakeRouter{result: &model.RouterResult{Text: &reply}}
	res, err := Relay(context.Background(), r, d, logger.NewNop(), model.PlatformFacebook, "psid", "hi")
	require.NoError(t, err)
	require.Equal(t, &reply, res.Text)
	require.Equal(t, [][2]string{{"psid", "Chào bạn"}}, sender.sent)

	r.result = &model.RouterResult{NoReply: true, Escalated: true}
	_, err = Relay(context.Background(), r, d, logger.NewNop(), model.PlatformFacebook, "psid", "hello?")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	r.err = errors.New("persistence")
	_, err = Relay(context.Background(), r, d, logger.NewNop(), model.PlatformFacebook, "psid", "x")
	require.Error(t, err)
}

func TestRelay_DeliveryFailureIsLogged(t *testing.T) {
	reply := "ok"
	d := NewDispatcher(time.Second, logger.NewNop())
	r := &fakeRouter{result: &model.RouterResult{Text: &reply}}

	res, err := Relay(context.Background(), r, d, logger.NewNop(), model.PlatformWhatsApp, "w1", "hi")
	require.NoError(t, err)
	require.NotNil(t, res)
}
