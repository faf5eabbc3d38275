package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// default and the backend the store tests run against.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id        TEXT PRIMARY KEY,
		sender            TEXT NOT NULL,
		receiver          TEXT NOT NULL,
		encrypted_message TEXT NOT NULL,
		encrypted_key     TEXT NOT NULL,
		iv                TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'sent',
		created_at        TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver, created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertMessage inserts a message; a duplicate message_id is a no-op.
func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	defer func() { metrics.StoreLatency.Observe(time.Since(start).Seconds()) }()

	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, sender, receiver, encrypted_message, encrypted_key, iv, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
	`, msg.MessageID, msg.Sender, msg.Receiver, msg.EncryptedMessage, msg.EncryptedKey, msg.IV, string(msg.Status), msg.CreatedAt)
	return err
}

// UpdateStatus advances a message's status; equal or earlier statuses
// are ignored so replayed jobs cannot move it backwards.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, messageID string, status models.Status) error {
	start := time.Now()
	defer func() { metrics.StoreLatency.Observe(time.Since(start).Seconds()) }()

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?2
		WHERE message_id = ?1
		  AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END
		    < CASE ?2     WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END
	`, messageID, string(status))
	return err
}

// FindByParticipant returns every message sent or received by userID,
// ordered by creation time ascending.
func (s *SQLiteStore) FindByParticipant(ctx context.Context, userID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender, receiver, encrypted_message, encrypted_key, iv, status, created_at
		FROM messages
		WHERE sender = ?1 OR receiver = ?1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var status string
		err := rows.Scan(
			&msg.MessageID,
			&msg.Sender,
			&msg.Receiver,
			&msg.EncryptedMessage,
			&msg.EncryptedKey,
			&msg.IV,
			&status,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Status = models.Status(status)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
