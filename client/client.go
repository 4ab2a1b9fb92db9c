package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-chat-core/models"
)

// ErrNotFound reports a 404 from the backend, e.g. an unknown profile.
var ErrNotFound = errors.New("not found")

// Client is the request/response side of the chat backend: login, history,
// fallback send and profile lookup.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL. token may be empty until Login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates and keeps the returned session token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", models.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// Token returns the session token, once logged in. The transport session
// authenticates with the same token.
func (c *Client) Token() string { return c.token }

// Messages fetches a conversation's history as raw payloads for the
// normalizer. The backend returns them newest first.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]map[string]any, error) {
	var out []map[string]any
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage is the request/response fallback for sends. The response is
// the confirmed message as a raw payload.
func (c *Client) SendMessage(ctx context.Context, conversationID, content, image string) (map[string]any, error) {
	var out map[string]any
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := c.do(ctx, http.MethodPost, path, models.SendMessageRequest{Content: content, Image: image}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Profile looks one user up by username. Unknown users return ErrNotFound.
func (c *Client) Profile(ctx context.Context, username string) (*models.SenderProfile, error) {
	var p models.SenderProfile
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(username), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("client: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}
