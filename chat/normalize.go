package chat

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"social-chat-core/models"
)

// TempIDPrefix marks locally created messages the server has not confirmed
// yet. Reconciliation replaces them in place once the echo or the fallback
// response arrives.
const TempIDPrefix = "local-"

// NewTempID returns a fresh client-side message id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated on this client.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Normalizer converts raw payloads from every source (history fetch, push
// event, fallback response) into canonical messages. It never fails: any
// missing or oddly named field falls back to a safe default. The field
// aliases cover the shapes the backend actually emits, which differ between
// its REST and push surfaces.
type Normalizer struct {
	conversationID string
	cache          *SenderCache
	now            func() time.Time
}

func NewNormalizer(conversationID string, cache *SenderCache) *Normalizer {
	return &Normalizer{
		conversationID: conversationID,
		cache:          cache,
		now:            time.Now,
	}
}

// Normalize maps one raw payload to exactly one Message.
func (n *Normalizer) Normalize(raw map[string]any) *models.Message {
	if raw == nil {
		raw = map[string]any{}
	}
	msg := &models.Message{ConversationID: n.conversationID}

	if v := stringField(raw, "conversation_id", "room_id"); v != "" {
		msg.ConversationID = v
	}

	msg.ID = stringField(raw, "id", "message_id")
	if msg.ID == "" {
		msg.ID = NewTempID()
	}
	msg.Pending = IsTempID(msg.ID)

	msg.SenderID = stringField(raw, "sender_id", "username")
	if msg.SenderID == "" {
		if sender, ok := raw["sender"].(map[string]any); ok {
			msg.SenderID = stringField(sender, "username")
		}
	}

	msg.Content = stringField(raw, "content", "text")
	msg.Image = stringField(raw, "image", "image_path")
	if v, ok := raw["is_read"].(bool); ok {
		msg.IsRead = v
	}

	msg.Timestamp = timeField(raw, "created_at", "sent_at", "timestamp")
	if msg.Timestamp.IsZero() && msg.Pending {
		// Server clocks are authoritative. Fabricating a time is only safe
		// for a message that exists nowhere but this client yet.
		msg.Timestamp = n.now()
	}

	msg.Sender = n.senderProfile(raw, msg.SenderID)
	return msg
}

// senderProfile attaches the shared profile instance for the message's
// sender. A payload carrying a full embedded sender object upgrades the
// cached instance on the spot; anything else gets the cached (possibly
// placeholder) one.
func (n *Normalizer) senderProfile(raw map[string]any, senderID string) *models.SenderProfile {
	if sender, ok := raw["sender"].(map[string]any); ok {
		var p models.SenderProfile
		if err := models.DecodeEventData(sender, &p); err == nil && p.Username != "" {
			if n.cache != nil {
				return n.cache.Put(&p)
			}
			return &p
		}
	}
	if senderID == "" {
		return models.PlaceholderProfile("")
	}
	if n.cache != nil {
		return n.cache.Get(senderID)
	}
	return models.PlaceholderProfile(senderID)
}

// stringField returns the first present alias as a string. Numeric ids are
// accepted and formatted, since some payload sources send them as JSON
// numbers.
func stringField(raw map[string]any, aliases ...string) string {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatInt(int64(t), 10)
		case int64:
			return strconv.FormatInt(t, 10)
		case int:
			return strconv.Itoa(t)
		}
	}
	return ""
}

// timeField parses the first recognizable timestamp alias. RFC3339 strings
// and unix milliseconds are both in the wild.
func timeField(raw map[string]any, aliases ...string) time.Time {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, t); err == nil {
				return ts
			}
		case float64:
			return time.UnixMilli(int64(t))
		case int64:
			return time.UnixMilli(t)
		case time.Time:
			return t
		}
	}
	return time.Time{}
}
