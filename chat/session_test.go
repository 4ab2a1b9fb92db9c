package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-core/models"
)

type fakeEvent struct {
	event   string
	payload map[string]any
}

// fakeTransport records the session's traffic and lets tests inject push
// events synchronously.
type fakeTransport struct {
	mu        sync.Mutex
	publishOK bool
	joins     []string
	leaves    []string
	published []fakeEvent
	handlers  map[string][]func(map[string]any)
	disposed  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		publishOK: true,
		handlers:  make(map[string][]func(map[string]any)),
	}
}

func (f *fakeTransport) JoinRoom(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conversationID)
}

func (f *fakeTransport) LeaveRoom(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, conversationID)
}

func (f *fakeTransport) Publish(event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := payload.(map[string]any)
	f.published = append(f.published, fakeEvent{event: event, payload: data})
	return f.publishOK
}

func (f *fakeTransport) Subscribe(event string, handler func(map[string]any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.disposed++
	}
}

// deliver runs subscribed handlers inline, the way the real read loop does.
func (f *fakeTransport) deliver(event string, payload map[string]any) {
	f.mu.Lock()
	handlers := append(([]func(map[string]any))(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (f *fakeTransport) publishedOf(event string) []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeEvent
	for _, e := range f.published {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeTransport) setPublishOK(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishOK = ok
}

type fakeBackend struct {
	mu         sync.Mutex
	history    []map[string]any
	historyErr error
	sendResp   map[string]any
	sendErr    error
	sendCalls  int
	profiles   map[string]*models.SenderProfile
}

func (f *fakeBackend) Messages(ctx context.Context, conversationID string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID, content, image string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResp, nil
}

func (f *fakeBackend) Profile(ctx context.Context, username string) (*models.SenderProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[username]; ok {
		return p, nil
	}
	return nil, errors.New("unknown user")
}

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

type hookRecorder struct {
	mu        sync.Mutex
	timelines [][]models.Message
	typing    [][]string
	failTexts []string
	failErrs  []error
	histErrs  []error
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		OnTimeline: func(msgs []models.Message) {
			r.mu.Lock()
			r.timelines = append(r.timelines, msgs)
			r.mu.Unlock()
		},
		OnTyping: func(users []string) {
			r.mu.Lock()
			r.typing = append(r.typing, users)
			r.mu.Unlock()
		},
		OnSendFailed: func(text string, err error) {
			r.mu.Lock()
			r.failTexts = append(r.failTexts, text)
			r.failErrs = append(r.failErrs, err)
			r.mu.Unlock()
		},
		OnHistoryFailed: func(err error) {
			r.mu.Lock()
			r.histErrs = append(r.histErrs, err)
			r.mu.Unlock()
		},
	}
}

func (r *hookRecorder) timelineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timelines)
}

func (r *hookRecorder) lastTyping() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.typing) == 0 {
		return nil
	}
	return r.typing[len(r.typing)-1]
}

func (r *hookRecorder) sendFailures() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failTexts...), append([]error(nil), r.failErrs...)
}

func (r *hookRecorder) historyFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.histErrs)
}

const testConv = "community:general"

func newTestSession(ft *fakeTransport, fb *fakeBackend, rec *hookRecorder) *Session {
	return NewSession(Options{
		Conversation: models.ParseConversation(testConv),
		Self:         "alice",
		Backend:      fb,
		Transport:    ft,
		Hooks:        rec.hooks(),
		QuietPeriod:  time.Hour,
	})
}

func TestOpenSeedsTimelineFromHistory(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{
		history: []map[string]any{
			{"id": "2", "conversation_id": testConv, "sender_id": "bob", "content": "second", "created_at": "2026-03-01T10:00:05Z"},
			{"id": "1", "conversation_id": testConv, "sender_id": "bob", "content": "first", "created_at": "2026-03-01T10:00:00Z"},
		},
		profiles: map[string]*models.SenderProfile{
			"bob": {Username: "bob", FirstName: "Bob", LastName: "Marsh"},
		},
	}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()

	s.Open(nil)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, []string{testConv}, ft.joins)
	assert.GreaterOrEqual(t, rec.timelineCount(), 1)

	// Background profile resolution upgrades the shared placeholder.
	require.Eventually(t, func() bool {
		m := s.Messages()
		return len(m) == 2 && m[0].Sender != nil && !m[0].Sender.Placeholder
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Bob Marsh", s.Messages()[0].Sender.DisplayName())
}

func TestOpenIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()

	s.Open(nil)
	s.Open(nil)

	assert.Equal(t, 1, ft.joinCount())
}

func TestOpenSurvivesHistoryFailure(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{historyErr: errors.New("backend down")}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()

	s.Open(nil)

	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, rec.historyFailures())
	assert.GreaterOrEqual(t, rec.timelineCount(), 1, "an empty timeline still renders")

	// Live pushes keep flowing after the failed fetch.
	ft.deliver(models.EventCommunityMessage, map[string]any{
		"message_id": "srv-1", "conversation_id": testConv,
		"username": "bob", "text": "still here",
		"sent_at": float64(time.Now().UnixMilli()),
	})
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here", msgs[0].Content)
}

func TestSendConfirmedByRoomEcho(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	s.Send("hi")

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Pending)
	assert.True(t, IsTempID(msgs[0].ID))

	require.Eventually(t, func() bool {
		return len(ft.publishedOf(models.EventCommunityMessage)) == 1
	}, time.Second, 10*time.Millisecond)
	sent := ft.publishedOf(models.EventCommunityMessage)[0]
	assert.Equal(t, testConv, sent.payload["conversation_id"])
	assert.Equal(t, "hi", sent.payload["content"])

	// The room echo confirms the pending entry in place.
	ft.deliver(models.EventCommunityMessage, map[string]any{
		"message_id": "srv-9", "conversation_id": testConv,
		"username": "alice", "text": "hi",
		"sent_at": float64(time.Now().UnixMilli()),
	})
	msgs = s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-9", msgs[0].ID)
	assert.False(t, msgs[0].Pending)
	assert.Equal(t, 0, fb.sendCount(), "echo path must not touch the fallback")

	// Redelivery of the same id is dropped.
	ft.deliver(models.EventCommunityMessage, map[string]any{
		"message_id": "srv-9", "conversation_id": testConv,
		"username": "alice", "text": "hi",
		"sent_at": float64(time.Now().UnixMilli()),
	})
	assert.Len(t, s.Messages(), 1)
}

func TestSendFallsBackWhenTransportDown(t *testing.T) {
	ft := newFakeTransport()
	ft.setPublishOK(false)
	fb := &fakeBackend{
		sendResp: map[string]any{
			"id": "srv-2", "conversation_id": testConv,
			"sender_id": "alice", "content": "hi",
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	s.Send("hi")

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return fb.sendCount() == 1 && len(msgs) == 1 && !msgs[0].Pending
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "srv-2", s.Messages()[0].ID)

	texts, _ := rec.sendFailures()
	assert.Empty(t, texts)
}

func TestSendRollsBackOnTotalFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.setPublishOK(false)
	sentinel := errors.New("http 500")
	fb := &fakeBackend{sendErr: sentinel}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	s.Send("doomed")

	require.Eventually(t, func() bool {
		texts, _ := rec.sendFailures()
		return len(texts) == 1 && len(s.Messages()) == 0
	}, time.Second, 10*time.Millisecond)

	texts, errs := rec.sendFailures()
	assert.Equal(t, "doomed", texts[0], "the composed text must come back for the input box")
	assert.True(t, errors.Is(errs[0], sentinel))
	var sendErr *SendError
	require.True(t, errors.As(errs[0], &sendErr))
	assert.Equal(t, "doomed", sendErr.Text)
}

func TestIncomingFromOtherConversationIgnored(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	ft.deliver(models.EventCommunityMessage, map[string]any{
		"message_id": "srv-1", "conversation_id": "community:other",
		"username": "bob", "text": "wrong room",
	})

	assert.Empty(t, s.Messages())
}

func TestRemoteTypingEvents(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	ft.deliver(models.EventTypingIndicator, map[string]any{
		"conversation_id": testConv, "username": "bob", "is_typing": true,
	})
	assert.Equal(t, []string{"bob"}, s.TypingUsers())
	assert.Equal(t, []string{"bob"}, rec.lastTyping())

	// Typing in another room and echoes of the local user do not count.
	ft.deliver(models.EventTypingIndicator, map[string]any{
		"conversation_id": "community:other", "username": "carol", "is_typing": true,
	})
	ft.deliver(models.EventTypingIndicator, map[string]any{
		"conversation_id": testConv, "username": "alice", "is_typing": true,
	})
	assert.Equal(t, []string{"bob"}, s.TypingUsers())

	ft.deliver(models.EventTypingIndicator, map[string]any{
		"conversation_id": testConv, "username": "bob", "is_typing": false,
	})
	assert.Empty(t, s.TypingUsers())
}

func TestLocalTypingPublishesTransitions(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	defer s.Close()
	s.Open(nil)

	s.SetInput("h")
	s.SetInput("he")

	events := ft.publishedOf(models.EventTypingIndicator)
	require.Len(t, events, 1)
	assert.Equal(t, testConv, events[0].payload["conversation_id"])
	assert.Equal(t, "alice", events[0].payload["username"])
	assert.Equal(t, true, events[0].payload["is_typing"])

	// Sending clears the compose box, which stops typing.
	s.Send("he")
	require.Eventually(t, func() bool {
		return len(ft.publishedOf(models.EventTypingIndicator)) == 2
	}, time.Second, 10*time.Millisecond)
	events = ft.publishedOf(models.EventTypingIndicator)
	assert.Equal(t, false, events[1].payload["is_typing"])
}

func TestCloseTearsEverythingDown(t *testing.T) {
	ft := newFakeTransport()
	fb := &fakeBackend{}
	rec := &hookRecorder{}
	s := newTestSession(ft, fb, rec)
	s.Open(nil)

	s.Close()

	assert.Equal(t, []string{testConv}, ft.leaves)
	assert.Equal(t, 2, ft.disposed, "both subscriptions must be disposed")

	// Late events and calls after close are no-ops.
	before := rec.timelineCount()
	ft.deliver(models.EventCommunityMessage, map[string]any{
		"message_id": "srv-1", "conversation_id": testConv, "username": "bob", "text": "late",
	})
	s.Send("after close")
	assert.Empty(t, s.Messages())
	assert.Equal(t, before, rec.timelineCount())

	s.Close()
	assert.Len(t, ft.leaves, 1, "second close must not leave again")
}

func TestCloseWithoutOpenDoesNotLeave(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(ft, &fakeBackend{}, &hookRecorder{})

	s.Close()

	assert.Empty(t, ft.leaves)
	assert.Empty(t, ft.joins)
}
