package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"social-chat-core/database"
	"social-chat-core/models"
	"social-chat-core/telemetry"
	"social-chat-core/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev (restrict in production)
	},
}

const writeWait = 10 * time.Second

// wsClient is one connected socket. Writes are serialized through writeMu
// because room fanout happens from multiple goroutines.
type wsClient struct {
	conn     *websocket.Conn
	username string
	writeMu  sync.Mutex
}

func (c *wsClient) send(msgType string, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(models.Envelope{Type: msgType, Data: data})
}

// Hub tracks connected clients and the conversation rooms they have joined.
// A room is just the set of clients that asked for it; membership lives only
// as long as the socket.
type Hub struct {
	store   *database.Store
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	rooms   map[string]map[*wsClient]struct{}
}

func NewHub(store *database.Store) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*wsClient]struct{}),
		rooms:   make(map[string]map[*wsClient]struct{}),
	}
}

// HandleWebSocket upgrades the connection and runs the read loop. Auth
// happens here rather than in middleware so the token can ride the query
// string, which is how browser WebSocket clients have to pass it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := util.TokenFromRequest(r)
	username, ok := util.SessionUsername(token)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{conn: conn, username: username}
	h.register(client)
	telemetry.WSConnections.Inc()
	log.Printf("User %s connected via WebSocket", username)

	defer func() {
		h.unregister(client)
		conn.Close()
		log.Printf("User %s disconnected from WebSocket", username)
	}()

	client.send(models.EventConnected, map[string]string{
		"status":   "connected",
		"username": username,
	})

	for {
		var msg models.Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("WebSocket read error for user %s: %v", username, err)
			return
		}
		h.handleEvent(client, msg)
	}
}

func (h *Hub) handleEvent(client *wsClient, msg models.Envelope) {
	switch msg.Type {
	case models.EventJoinRoom:
		var req models.RoomRequest
		if err := models.DecodeEventData(msg.Data, &req); err != nil || req.ConversationID == "" {
			client.send(models.EventError, "Invalid room request")
			return
		}
		h.joinRoom(client, req.ConversationID)

	case models.EventLeaveRoom:
		var req models.RoomRequest
		if err := models.DecodeEventData(msg.Data, &req); err != nil || req.ConversationID == "" {
			client.send(models.EventError, "Invalid room request")
			return
		}
		h.leaveRoom(client, req.ConversationID)

	case models.EventNewMessage, models.EventCommunityMessage:
		var req struct {
			ConversationID string `json:"conversation_id"`
			Content        string `json:"content"`
			Image          string `json:"image"`
		}
		if err := models.DecodeEventData(msg.Data, &req); err != nil {
			log.Printf("Error decoding message from %s: %v", client.username, err)
			client.send(models.EventError, "Invalid message payload")
			return
		}
		if req.ConversationID == "" {
			client.send(models.EventError, "Conversation ID is required")
			return
		}
		if req.Content == "" && req.Image == "" {
			client.send(models.EventError, "Message content cannot be empty")
			return
		}
		stored, err := h.store.InsertMessage(req.ConversationID, kindOf(req.ConversationID), client.username, req.Content, req.Image)
		if err != nil {
			log.Printf("Error saving message from %s: %v", client.username, err)
			client.send(models.EventError, "Failed to save message")
			return
		}
		// The whole room gets the echo, sender included. The sender's
		// client uses it to confirm its optimistic copy.
		h.BroadcastMessage(stored)

	case models.EventTypingIndicator:
		var ev models.TypingEvent
		if err := models.DecodeEventData(msg.Data, &ev); err != nil || ev.ConversationID == "" {
			return
		}
		// Stamp the session identity so nobody can type as someone else.
		ev.Username = client.username
		h.broadcast(ev.ConversationID, models.EventTypingIndicator, ev, client)
		telemetry.EventsBroadcast.WithLabelValues(models.EventTypingIndicator).Inc()

	case "ping":
		client.send("pong", "pong")

	default:
		log.Printf("Unknown message type from user %s: %s", client.username, msg.Type)
	}
}

// BroadcastMessage fans a stored message out to its conversation room in the
// push wire shape. Sender profile rides along when the lookup succeeds so
// clients can skip the profile fetch.
func (h *Hub) BroadcastMessage(stored *database.StoredMessage) {
	payload := map[string]interface{}{
		"message_id":      stored.ID,
		"conversation_id": stored.ConversationID,
		"username":        stored.Sender,
		"text":            stored.Content,
		"sent_at":         stored.CreatedAt.UnixMilli(),
	}
	if stored.Image != "" {
		payload["image_path"] = stored.Image
	}
	if user, err := h.store.UserByUsername(stored.Sender); err == nil {
		payload["sender"] = user.Profile()
	} else {
		log.Printf("Error fetching sender profile for %s: %v", stored.Sender, err)
	}

	conv := models.Conversation{ID: stored.ConversationID, Kind: kindOf(stored.ConversationID)}
	event := conv.MessageEvent()
	h.broadcast(stored.ConversationID, event, payload, nil)
	telemetry.EventsBroadcast.WithLabelValues(event).Inc()
}

// broadcast sends an envelope to every client in the room, except skip when
// it is non-nil. Dead connections are dropped on write failure.
func (h *Hub) broadcast(roomID, msgType string, data interface{}, skip *wsClient) {
	h.mu.RLock()
	members := make([]*wsClient, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		if client == skip {
			continue
		}
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if err := client.send(msgType, data); err != nil {
			log.Printf("Error broadcasting to user %s: %v", client.username, err)
			h.unregister(client)
			client.conn.Close()
		}
	}
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	for roomID, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) joinRoom(client *wsClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*wsClient]struct{})
		h.rooms[roomID] = members
	}
	members[client] = struct{}{}
}

func (h *Hub) leaveRoom(client *wsClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// RoomSize reports how many clients are currently in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ClientCount reports how many sockets are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
