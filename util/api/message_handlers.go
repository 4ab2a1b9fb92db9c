package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"social-chat-core/database"
	"social-chat-core/middleware"
	"social-chat-core/models"
	"social-chat-core/telemetry"
)

const defaultHistoryLimit = 50

// MessageHandler serves conversation history and the REST send path. Clients
// normally publish over the websocket; REST sends are the fallback when the
// socket is down, so accepted messages are still broadcast to the room.
type MessageHandler struct {
	store *database.Store
	hub   *Hub
}

func NewMessageHandler(store *database.Store, hub *Hub) *MessageHandler {
	return &MessageHandler{store: store, hub: hub}
}

// historyShape renders a stored message in the REST history wire shape.
// Timestamps go out as RFC3339 strings.
func historyShape(m *database.StoredMessage) map[string]interface{} {
	shape := map[string]interface{}{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.Sender,
		"content":         m.Content,
		"is_read":         m.IsRead,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.Image != "" {
		shape["image"] = m.Image
	}
	return shape
}

// GetMessages handles GET /conversations/{conversationID}/messages.
// Messages come back newest first; fetching marks the other side's
// messages as read.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.PathValue("conversationID")
	if conversationID == "" {
		http.Error(w, "Conversation ID is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	stored, err := h.store.MessagesByConversation(conversationID, limit)
	if err != nil {
		log.Printf("Error fetching messages for %s: %v", conversationID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := h.store.MarkConversationRead(conversationID, username); err != nil {
		log.Printf("Error marking %s read for %s: %v", conversationID, username, err)
	}

	messages := make([]map[string]interface{}, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, historyShape(m))
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetUnreadCount handles GET /conversations/{conversationID}/unread.
// Conversation lists poll it for badge counts.
func (h *MessageHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.PathValue("conversationID")
	if conversationID == "" {
		http.Error(w, "Conversation ID is required", http.StatusBadRequest)
		return
	}

	count, err := h.store.UnreadCount(conversationID, username)
	if err != nil {
		log.Printf("Error counting unread messages for %s: %v", conversationID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// SendMessage handles POST /conversations/{conversationID}/messages.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.PathValue("conversationID")
	if conversationID == "" {
		http.Error(w, "Conversation ID is required", http.StatusBadRequest)
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" && req.Image == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	stored, err := h.store.InsertMessage(conversationID, kindOf(conversationID), username, req.Content, req.Image)
	if err != nil {
		log.Printf("Error storing message from %s in %s: %v", username, conversationID, err)
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	telemetry.FallbackSends.Inc()
	if h.hub != nil {
		h.hub.BroadcastMessage(stored)
	}

	writeJSON(w, http.StatusCreated, historyShape(stored))
}
