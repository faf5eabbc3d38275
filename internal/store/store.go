package store

import (
	"context"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// MessageStore defines the durable message log. Both PostgresStore and
// SQLiteStore implement this interface; the worker and the catch-up read
// path are its only consumers.
//
// All writes are idempotent: UpsertMessage swallows duplicate message IDs
// and UpdateStatus only ever moves a status forward, so at-least-once job
// delivery is safe to replay.
type MessageStore interface {
	Close()
	Ping(ctx context.Context) error

	// UpsertMessage inserts msg; a duplicate messageId is a no-op.
	UpsertMessage(ctx context.Context, msg *models.Message) error

	// UpdateStatus sets the status of a message, only if the new status
	// is later in the sent -> delivered -> read order than the stored one.
	UpdateStatus(ctx context.Context, messageID string, status models.Status) error

	// FindByParticipant returns every message sent or received by userID,
	// ordered by creation time ascending.
	FindByParticipant(ctx context.Context, userID string) ([]models.Message, error)
}
