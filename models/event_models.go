package models

import "encoding/json"

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Event kinds carried over the transport.
const (
	EventNewMessage       = "new_message"
	EventCommunityMessage = "community_message"
	EventTypingIndicator  = "typing_indicator"

	EventConnected = "connected"
	EventError     = "error"

	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
)

// DecodeEventData converts an envelope's loosely typed data into dst by
// round-tripping through JSON.
func DecodeEventData(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// TypingEvent is the typing_indicator payload in both directions.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"is_typing"`
}

// RoomRequest is the join_room / leave_room payload.
type RoomRequest struct {
	ConversationID string `json:"conversation_id"`
}
