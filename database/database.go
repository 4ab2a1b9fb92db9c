package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"social-chat-core/models"
)

// Store wraps the sqlite handle behind the queries the chat handlers need.
// Schema management lives in pkg/db/sqlite.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StoredMessage is one message row.
type StoredMessage struct {
	ID             int64
	ConversationID string
	Sender         string
	Content        string
	Image          string
	IsRead         bool
	CreatedAt      time.Time
}

// CreateUser upserts an account by username and returns its id. Seeding at
// boot runs this repeatedly, so existing rows are refreshed, not duplicated.
func (s *Store) CreateUser(u *models.User) (int64, error) {
	_, err := s.db.Exec(`
        INSERT INTO users (username, password_hash, first_name, last_name, avatar, about_me)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(username) DO UPDATE SET
            password_hash = excluded.password_hash,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            avatar = excluded.avatar,
            about_me = excluded.about_me`,
		u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Avatar, u.AboutMe)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user %s: %w", u.Username, err)
	}
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, u.Username).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back user %s: %w", u.Username, err)
	}
	return id, nil
}

// UserByUsername returns the stored account or sql.ErrNoRows.
func (s *Store) UserByUsername(username string) (*models.User, error) {
	row := s.db.QueryRow(`
        SELECT id, username, password_hash, first_name, last_name, avatar, about_me, created_at
        FROM users WHERE username = ?`, username)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Avatar, &u.AboutMe, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every account except the caller's, ordered by username.
func (s *Store) ListUsers(except string) ([]*models.User, error) {
	rows, err := s.db.Query(`
        SELECT id, username, password_hash, first_name, last_name, avatar, about_me, created_at
        FROM users WHERE username != ? ORDER BY username ASC`, except)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Avatar, &u.AboutMe, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// InsertMessage persists one message and refreshes the conversation row in
// the same transaction, so the conversation always points at its latest
// message.
func (s *Store) InsertMessage(conversationID string, kind models.ConversationKind, sender, content, image string) (*StoredMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(`
        INSERT INTO messages (conversation_id, sender_username, content, image, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		conversationID, sender, content, image, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	_, err = tx.Exec(`
        INSERT INTO conversations (id, kind, last_message_id, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            last_message_id = excluded.last_message_id,
            updated_at = excluded.updated_at`,
		conversationID, kind, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	return &StoredMessage{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Image:          image,
		CreatedAt:      now,
	}, nil
}

// MessagesByConversation returns up to limit messages, newest first. The id
// tiebreak keeps bursts with equal timestamps in insertion order.
func (s *Store) MessagesByConversation(conversationID string, limit int) ([]*StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT id, conversation_id, sender_username, content, image, is_read, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.Image, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkConversationRead flags every message the reader did not send as read.
func (s *Store) MarkConversationRead(conversationID, reader string) error {
	_, err := s.db.Exec(`
        UPDATE messages SET is_read = 1
        WHERE conversation_id = ? AND sender_username != ? AND is_read = 0`,
		conversationID, reader)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// UnreadCount counts the messages in a conversation the reader has not seen.
func (s *Store) UnreadCount(conversationID, reader string) (int, error) {
	var n int
	err := s.db.QueryRow(`
        SELECT COUNT(*) FROM messages
        WHERE conversation_id = ? AND sender_username != ? AND is_read = 0`,
		conversationID, reader).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}
