package models

import (
	"strings"
	"time"
)

// Message is the canonical shape every chat surface renders. Raw payloads
// from history fetches, push events and local sends are all normalized into
// this before they reach a timeline.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Sender         *SenderProfile `json:"sender,omitempty"`
	Content        string         `json:"content"`
	Image          string         `json:"image,omitempty"`
	Timestamp      time.Time      `json:"created_at"`
	IsRead         bool           `json:"is_read"`
	Pending        bool           `json:"pending,omitempty"`
}

type ConversationKind string

const (
	ConversationDirect    ConversationKind = "direct"
	ConversationCommunity ConversationKind = "community"
)

// Conversation identifies one chat screen's subject: a direct thread or a
// community room. The id is opaque to the client.
type Conversation struct {
	ID   string           `json:"id"`
	Kind ConversationKind `json:"kind"`
}

// ParseConversation classifies an id by convention: community rooms carry a
// "community:" prefix, everything else is a direct thread.
func ParseConversation(id string) Conversation {
	kind := ConversationDirect
	if strings.HasPrefix(id, "community:") {
		kind = ConversationCommunity
	}
	return Conversation{ID: id, Kind: kind}
}

// MessageEvent is the transport event kind that carries new messages for
// this conversation.
func (c Conversation) MessageEvent() string {
	if c.Kind == ConversationCommunity {
		return EventCommunityMessage
	}
	return EventNewMessage
}

type SendMessageRequest struct {
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}
