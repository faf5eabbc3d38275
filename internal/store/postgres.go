package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the messages table if it doesn't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id        TEXT PRIMARY KEY,
		sender            TEXT NOT NULL,
		receiver          TEXT NOT NULL,
		encrypted_message TEXT NOT NULL,
		encrypted_key     TEXT NOT NULL,
		iv                TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'sent',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver, created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertMessage inserts a message; a duplicate message_id is a no-op.
func (s *PostgresStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	defer func() { metrics.StoreLatency.Observe(time.Since(start).Seconds()) }()

	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, sender, receiver, encrypted_message, encrypted_key, iv, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING
	`, msg.MessageID, msg.Sender, msg.Receiver, msg.EncryptedMessage, msg.EncryptedKey, msg.IV, string(msg.Status), msg.CreatedAt)
	return err
}

// UpdateStatus advances a message's status. The rank guard makes the
// write a no-op when the stored status is already equal or later, so
// replayed or reordered jobs cannot regress it.
func (s *PostgresStore) UpdateStatus(ctx context.Context, messageID string, status models.Status) error {
	start := time.Now()
	defer func() { metrics.StoreLatency.Observe(time.Since(start).Seconds()) }()

	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET status = $2
		WHERE message_id = $1
		  AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END
		    < CASE $2     WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END
	`, messageID, string(status))
	return err
}

// FindByParticipant returns every message sent or received by userID,
// ordered by creation time ascending.
func (s *PostgresStore) FindByParticipant(ctx context.Context, userID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, sender, receiver, encrypted_message, encrypted_key, iv, status, created_at
		FROM messages
		WHERE sender = $1 OR receiver = $1
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
