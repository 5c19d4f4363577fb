// Package store persists users, chats, memberships, and message history in an
// embedded SQLite database. Messages are append-only; history reads always
// return them ordered by send time.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateEmail is returned by CreateUser when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Chat kinds persisted in the chats table.
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// User is a registered account. The password hash never leaves this package
// except through GetUserByEmail for credential verification.
type User struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

// Chat is a direct or group conversation.
type Chat struct {
	ID   int64  `db:"id"`
	Kind string `db:"kind"`
	Name string `db:"name"`
}

// Message is a single persisted chat message.
type Message struct {
	ID       int64     `db:"id"`
	ChatID   int64     `db:"chat_id"`
	SenderID int64     `db:"sender_id"`
	Content  string    `db:"content"`
	SentAt   time.Time `db:"-"`
}

// Store wraps the SQLite connection and owns the schema.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS chat_members (
			chat_id INTEGER NOT NULL REFERENCES chats(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(chat_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(id),
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			sent_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token TEXT NOT NULL,
			issued_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_members_user ON chat_members(user_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser inserts a new user and returns its id. The caller supplies the
// already-hashed password; plaintext must never reach this layer. The UNIQUE
// index on email is the single authority on duplicates, so concurrent
// registrations of the same address cannot both succeed.
func (s *Store) CreateUser(name, email, passwordHash string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)",
		name, email, passwordHash,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByEmail returns the user with the given email, or ErrNotFound.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	var u User
	err := s.db.Get(&u, "SELECT id, name, email, password_hash FROM users WHERE email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RecordSession writes a session audit row. Nothing reads sessions back; the
// token itself is the credential.
func (s *Store) RecordSession(userID int64, token string, issuedAt time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO sessions (user_id, token, issued_at) VALUES (?, ?, ?)",
		userID, token, issuedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListChatsForUser returns every chat the user is a member of.
func (s *Store) ListChatsForUser(userID int64) ([]Chat, error) {
	var chats []Chat
	err := s.db.Select(&chats, `
		SELECT c.id, c.kind, c.name
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// IsMember reports whether the user has a membership row for the chat.
func (s *Store) IsMember(chatID, userID int64) (bool, error) {
	var count int
	err := s.db.Get(&count,
		"SELECT COUNT(*) FROM chat_members WHERE chat_id = ? AND user_id = ?",
		chatID, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateGroupChat inserts a group chat and one membership row per participant
// plus the creator, in a single transaction. Either the chat and every
// membership exist afterwards, or nothing does.
func (s *Store) CreateGroupChat(name string, creatorID int64, participantIDs []int64) (int64, []int64, error) {
	members := dedupeMembers(creatorID, participantIDs)

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO chats (kind, name) VALUES (?, ?)", KindGroup, name)
	if err != nil {
		return 0, nil, err
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}

	for _, userID := range members {
		if _, err := tx.Exec(
			"INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)",
			chatID, userID,
		); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return chatID, members, nil
}

// CreateDirectChat inserts a direct chat between two users. Direct chats are
// not created over the wire; this exists for seeding and tests.
func (s *Store) CreateDirectChat(a, b int64) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO chats (kind, name) VALUES (?, '')", KindDirect)
	if err != nil {
		return 0, err
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, userID := range dedupeMembers(a, []int64{b}) {
		if _, err := tx.Exec(
			"INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)",
			chatID, userID,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return chatID, nil
}

// SaveMessage appends a message to the chat's history.
func (s *Store) SaveMessage(chatID, senderID int64, content string, sentAt time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO messages (chat_id, sender_id, content, sent_at) VALUES (?, ?, ?, ?)",
		chatID, senderID, content, sentAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ChatHistory returns the full ordered history for a chat, sorted by send
// time with the insertion id as tiebreak.
func (s *Store) ChatHistory(chatID int64) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, sender_id, content, sent_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY sent_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var sentAt string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &sentAt); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, sentAt)
		if err != nil {
			return nil, err
		}
		m.SentAt = ts
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// dedupeMembers returns creator plus participants with duplicates removed,
// preserving first-seen order.
func dedupeMembers(creatorID int64, participantIDs []int64) []int64 {
	seen := map[int64]struct{}{creatorID: {}}
	members := []int64{creatorID}
	for _, id := range participantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}
