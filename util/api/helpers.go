package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"social-chat-core/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// remoteHost strips the port from RemoteAddr so rate limits key on the host.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// kindOf classifies a conversation id by the shared naming convention.
func kindOf(conversationID string) models.ConversationKind {
	return models.ParseConversation(conversationID).Kind
}
