package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"social-chat-core/models"
)

// Backend is the request/response surface a session depends on: history,
// fallback send and profile lookup.
type Backend interface {
	Messages(ctx context.Context, conversationID string) ([]map[string]any, error)
	SendMessage(ctx context.Context, conversationID, content, image string) (map[string]any, error)
	Profile(ctx context.Context, username string) (*models.SenderProfile, error)
}

// Transport is the live push surface a session depends on.
type Transport interface {
	JoinRoom(conversationID string)
	LeaveRoom(conversationID string)
	Publish(event string, payload any) bool
	Subscribe(event string, handler func(map[string]any)) func()
}

// Hooks are the session's callbacks toward the UI. All are optional and may
// be invoked from internal goroutines.
type Hooks struct {
	OnTimeline      func([]models.Message)
	OnTyping        func([]string)
	OnSendFailed    func(text string, err error)
	OnHistoryFailed func(err error)
}

// Options configures a conversation session. QuietPeriod and
// CorrelationWindow fall back to their package defaults; tests shrink them.
type Options struct {
	Conversation models.Conversation
	Self         string
	Backend      Backend
	Transport    Transport
	Hooks        Hooks

	QuietPeriod       time.Duration
	CorrelationWindow time.Duration
}

// Session drives one open conversation screen: it joins the room, seeds the
// timeline from history, folds push events in, delivers sends with a
// request/response fallback and tracks typing state. Close releases every
// subscription and timer the session took.
type Session struct {
	mu        sync.Mutex
	conv      models.Conversation
	self      string
	backend   Backend
	transport Transport
	hooks     Hooks

	cache    *SenderCache
	norm     *Normalizer
	timeline *Timeline
	typing   *TypingTracker

	disposers []func()
	ctx       context.Context
	cancel    context.CancelFunc
	opened    bool
	closed    bool
}

// NewSession wires a session for one conversation. Nothing happens until
// Open.
func NewSession(opts Options) *Session {
	s := &Session{
		conv:      opts.Conversation,
		self:      opts.Self,
		backend:   opts.Backend,
		transport: opts.Transport,
		hooks:     opts.Hooks,
	}
	var lookup ProfileLookup
	if opts.Backend != nil {
		lookup = opts.Backend.Profile
	}
	s.cache = NewSenderCache(lookup)
	s.cache.OnUpgrade(func(string) { s.emitTimeline() })
	s.norm = NewNormalizer(opts.Conversation.ID, s.cache)
	s.timeline = NewTimeline(opts.CorrelationWindow)
	s.typing = NewTypingTracker(opts.Self, opts.QuietPeriod, s.publishTyping, s.emitTyping)
	return s
}

// Open joins the conversation's room, subscribes to its events and seeds the
// timeline from history. A failed history fetch is not fatal: the session
// starts empty, reports OnHistoryFailed and keeps receiving pushes. Calling
// Open again, or after Close, is a no-op.
func (s *Session) Open(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	s.mu.Lock()
	if s.opened || s.closed {
		s.mu.Unlock()
		return
	}
	s.opened = true
	s.ctx, s.cancel = context.WithCancel(parent)
	ctx := s.ctx
	s.mu.Unlock()

	s.transport.JoinRoom(s.conv.ID)
	unsubMsg := s.transport.Subscribe(s.conv.MessageEvent(), s.handleIncoming)
	unsubTyping := s.transport.Subscribe(models.EventTypingIndicator, s.handleTyping)

	s.mu.Lock()
	s.disposers = append(s.disposers, unsubMsg, unsubTyping)
	s.mu.Unlock()

	s.loadHistory(ctx)
}

func (s *Session) loadHistory(ctx context.Context) {
	raws, err := s.backend.Messages(ctx, s.conv.ID)
	if err != nil {
		log.Printf("chat: history load for %s failed: %v", s.conv.ID, err)
		s.timeline.Seed(nil)
		s.emitTimeline()
		if s.hooks.OnHistoryFailed != nil {
			s.hooks.OnHistoryFailed(err)
		}
		return
	}
	msgs := make([]*models.Message, 0, len(raws))
	for _, raw := range raws {
		msgs = append(msgs, s.norm.Normalize(raw))
	}
	s.timeline.Seed(msgs)
	s.emitTimeline()
	s.resolveSenders(ctx, msgs)
}

// resolveSenders upgrades placeholder profiles in the background; the cache
// upgrade hook re-publishes the timeline when one lands.
func (s *Session) resolveSenders(ctx context.Context, msgs []*models.Message) {
	seen := make(map[string]bool)
	var usernames []string
	for _, m := range msgs {
		if m.Sender != nil && m.Sender.Placeholder && m.SenderID != "" && !seen[m.SenderID] {
			seen[m.SenderID] = true
			usernames = append(usernames, m.SenderID)
		}
	}
	if len(usernames) == 0 {
		return
	}
	go s.cache.Resolve(ctx, usernames...)
}

// handleIncoming folds one push event into the timeline. Events carrying a
// different conversation id belong to another open screen sharing the
// transport and are skipped.
func (s *Session) handleIncoming(raw map[string]any) {
	if s.isClosed() {
		return
	}
	msg := s.norm.Normalize(raw)
	if msg.ConversationID != s.conv.ID {
		return
	}
	if !s.timeline.MergeIncoming(msg) {
		return
	}
	s.emitTimeline()
	if msg.Sender != nil && msg.Sender.Placeholder && msg.SenderID != "" {
		go s.cache.Resolve(s.context(), msg.SenderID)
	}
}

func (s *Session) handleTyping(raw map[string]any) {
	if s.isClosed() {
		return
	}
	var ev models.TypingEvent
	if err := models.DecodeEventData(raw, &ev); err != nil {
		return
	}
	if ev.ConversationID != s.conv.ID {
		return
	}
	s.typing.ApplyRemote(ev.Username, ev.IsTyping)
}

// Send inserts an optimistic entry and delivers text, falling back to the
// request/response path when the socket is down. On total failure the entry
// is rolled back and OnSendFailed hands the text back for the compose box.
func (s *Session) Send(text string) {
	s.SendWithImage(text, "")
}

// SendWithImage sends text plus an already-uploaded image reference, e.g.
// the handle returned by the platform image picker.
func (s *Session) SendWithImage(text, image string) {
	if (text == "" && image == "") || s.isClosed() {
		return
	}
	s.typing.SetInput("")
	msg := &models.Message{
		ID:             NewTempID(),
		ConversationID: s.conv.ID,
		SenderID:       s.self,
		Sender:         s.cache.Get(s.self),
		Content:        text,
		Image:          image,
		Timestamp:      time.Now(),
		Pending:        true,
	}
	s.timeline.InsertOptimistic(msg)
	s.emitTimeline()
	go s.deliver(msg)
}

func (s *Session) deliver(msg *models.Message) {
	payload := map[string]any{
		"conversation_id": msg.ConversationID,
		"content":         msg.Content,
	}
	if msg.Image != "" {
		payload["image"] = msg.Image
	}
	if s.transport.Publish(s.conv.MessageEvent(), payload) {
		return // the room echo confirms it
	}
	log.Printf("chat: %v for %s, using fallback send", ErrTransportUnavailable, s.conv.ID)

	raw, err := s.backend.SendMessage(s.context(), msg.ConversationID, msg.Content, msg.Image)
	if err != nil {
		s.timeline.Remove(msg.ID)
		s.emitTimeline()
		if s.isClosed() {
			return
		}
		if s.hooks.OnSendFailed != nil {
			s.hooks.OnSendFailed(msg.Content, &SendError{Text: msg.Content, Err: err})
		}
		return
	}
	if s.timeline.MergeIncoming(s.norm.Normalize(raw)) {
		s.emitTimeline()
	}
}

// SetInput mirrors the compose box contents into the typing state machine.
func (s *Session) SetInput(text string) {
	s.typing.SetInput(text)
}

// Messages returns the ordered timeline snapshot.
func (s *Session) Messages() []models.Message {
	return s.timeline.Messages()
}

// TypingUsers returns the peers currently typing, sorted.
func (s *Session) TypingUsers() []string {
	return s.typing.Typing()
}

// Close leaves the room and releases every subscription and timer. Events
// and timer fires already in flight become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	opened := s.opened
	cancel := s.cancel
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, dispose := range disposers {
		dispose()
	}
	s.typing.Close()
	if opened {
		s.transport.LeaveRoom(s.conv.ID)
	}
}

func (s *Session) publishTyping(isTyping bool) {
	payload := map[string]any{
		"conversation_id": s.conv.ID,
		"username":        s.self,
		"is_typing":       isTyping,
	}
	if !s.transport.Publish(models.EventTypingIndicator, payload) {
		// Typing is ephemeral and self-healing, no fallback needed.
		log.Printf("chat: typing signal for %s dropped, transport down", s.conv.ID)
	}
}

func (s *Session) emitTimeline() {
	if s.isClosed() {
		return
	}
	if s.hooks.OnTimeline != nil {
		s.hooks.OnTimeline(s.timeline.Messages())
	}
}

func (s *Session) emitTyping() {
	if s.isClosed() {
		return
	}
	if s.hooks.OnTyping != nil {
		s.hooks.OnTyping(s.typing.Typing())
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
