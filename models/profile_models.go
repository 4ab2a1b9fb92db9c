package models

import "strings"

// SenderProfile describes the author of a message. A session shares one
// instance per username across every message, so upgrading a resolved
// placeholder in place updates all rendered messages at once.
type SenderProfile struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	AboutMe     string `json:"about_me,omitempty"`
	Placeholder bool   `json:"-"`
}

// DisplayName is the rendering rule used across the app: full name when the
// profile has one, otherwise the username handle.
func (p *SenderProfile) DisplayName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return p.Username
}

// PlaceholderProfile is the deterministic default shown until a lookup
// succeeds, and permanently when one fails.
func PlaceholderProfile(username string) *SenderProfile {
	return &SenderProfile{Username: username, Placeholder: true}
}
