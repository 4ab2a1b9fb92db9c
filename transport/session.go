package transport

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"social-chat-core/models"
)

const writeTimeout = 10 * time.Second

// Session is the app-wide websocket connection manager. One instance lives
// for the whole authenticated app session; conversation screens share it
// through refcounted JoinRoom/LeaveRoom and the typed subscribe surface.
// After a connection drop it redials on its own and re-joins every room
// still held by a screen.
type Session struct {
	mu         sync.Mutex
	writeMu    sync.Mutex
	dialer     *websocket.Dialer
	endpoint   string
	token      string
	conn       *websocket.Conn
	connected  bool
	dialing    bool
	closed     bool
	rooms      map[string]int
	bus        *bus
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewSession() *Session {
	return &Session{
		dialer:     websocket.DefaultDialer,
		rooms:      make(map[string]int),
		bus:        newBus(),
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Connect dials the websocket endpoint, authenticating with the session
// token in the query string. Calling it while connected is a no-op; calling
// it after Close is an error.
func (s *Session) Connect(endpoint, token string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("transport: session closed")
	}
	if s.connected || s.dialing {
		s.mu.Unlock()
		return nil
	}
	s.dialing = true
	s.endpoint = endpoint
	s.token = token
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.dialing = false
		s.mu.Unlock()
		return fmt.Errorf("transport: connect %s: %w", endpoint, err)
	}
	s.adopt(conn)
	return nil
}

func (s *Session) dial() (*websocket.Conn, error) {
	wsURL, err := websocketURL(s.endpoint, s.token)
	if err != nil {
		return nil, err
	}
	conn, _, err := s.dialer.Dial(wsURL, nil)
	return conn, err
}

// adopt installs a freshly dialed connection, re-sends join frames for every
// held room and starts the read loop. Join-before-connect is fine: the
// frames go out here.
func (s *Session) adopt(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.dialing = false
	held := make([]string, 0, len(s.rooms))
	for id, n := range s.rooms {
		if n > 0 {
			held = append(held, id)
		}
	}
	s.mu.Unlock()

	for _, id := range held {
		s.send(models.Envelope{Type: models.EventJoinRoom, Data: models.RoomRequest{ConversationID: id}})
	}
	go s.readLoop(conn)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		data, _ := env.Data.(map[string]any)
		s.bus.publish(env.Type, data)
	}
}

func (s *Session) handleDisconnect(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// A newer connection already took over.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected = false
	closed := s.closed
	s.mu.Unlock()

	conn.Close()
	if closed {
		return
	}
	log.Printf("transport: connection lost, reconnecting: %v", err)
	go s.reconnect()
}

// reconnect redials with capped exponential backoff until it succeeds or the
// session is closed for good.
func (s *Session) reconnect() {
	delay := s.backoff
	for {
		s.mu.Lock()
		if s.closed || s.connected || s.dialing {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		time.Sleep(delay)
		delay *= 2
		if delay > s.maxBackoff {
			delay = s.maxBackoff
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dial()
		if err != nil {
			log.Printf("transport: redial failed: %v", err)
			continue
		}
		s.adopt(conn)
		return
	}
}

// JoinRoom adds a screen's hold on a room. The join frame goes out when the
// count rises from zero; further joins only bump the count.
func (s *Session) JoinRoom(conversationID string) {
	if conversationID == "" {
		return
	}
	s.mu.Lock()
	s.rooms[conversationID]++
	first := s.rooms[conversationID] == 1
	connected := s.connected
	s.mu.Unlock()
	if first && connected {
		s.send(models.Envelope{Type: models.EventJoinRoom, Data: models.RoomRequest{ConversationID: conversationID}})
	}
}

// LeaveRoom releases one hold on a room. The leave frame goes out when the
// count reaches zero; leaving a room that was never joined is a no-op.
func (s *Session) LeaveRoom(conversationID string) {
	s.mu.Lock()
	n, ok := s.rooms[conversationID]
	if !ok || n == 0 {
		s.mu.Unlock()
		return
	}
	n--
	if n == 0 {
		delete(s.rooms, conversationID)
	} else {
		s.rooms[conversationID] = n
	}
	connected := s.connected
	s.mu.Unlock()
	if n == 0 && connected {
		s.send(models.Envelope{Type: models.EventLeaveRoom, Data: models.RoomRequest{ConversationID: conversationID}})
	}
}

// Publish sends one event over the live socket. False means the caller must
// use its request/response fallback; redialing is the session's own job.
func (s *Session) Publish(event string, payload any) bool {
	return s.send(models.Envelope{Type: event, Data: payload})
}

// Subscribe registers a handler for one event kind and returns its disposer.
// Disposing one handler never affects the others. Handlers run on the read
// loop in arrival order.
func (s *Session) Subscribe(event string, handler func(map[string]any)) func() {
	return s.bus.subscribe(event, handler)
}

// Connected reports whether the socket is currently live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears the connection down for good. No reconnect follows.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) send(env models.Envelope) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(env)
	s.writeMu.Unlock()
	if err != nil {
		log.Printf("transport: write failed: %v", err)
		s.handleDisconnect(conn, err)
		return false
	}
	return true
}

// websocketURL converts the http(s) endpoint into the ws(s) URL with the
// token in the query, which is how the server authenticates upgrades.
func websocketURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
