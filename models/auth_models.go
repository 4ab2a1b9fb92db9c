package models

import "time"

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the opaque session token the client presents on both
// the REST and websocket surfaces.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// User represents an account row in the backing database.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Avatar       string    `json:"avatar"`
	AboutMe      string    `json:"about_me"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the public view of a user returned by the profile endpoint.
func (u *User) Profile() *SenderProfile {
	return &SenderProfile{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		AboutMe:   u.AboutMe,
	}
}
