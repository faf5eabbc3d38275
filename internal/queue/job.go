// Package queue implements the durable write path: every state-changing
// action is enqueued as a job in addition to its best-effort bus publish,
// and a worker drains the queue into the message store with bounded,
// backed-off retries.
package queue

import (
	"fmt"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// JobKind discriminates the closed set of job variants.
type JobKind string

const (
	KindStoreMessage JobKind = "storeMessage"
	KindUpdateStatus JobKind = "updateStatus"
)

// StoreMessageJob persists a freshly sent message.
type StoreMessageJob struct {
	Message models.Message `json:"message"`
}

// UpdateStatusJob advances the status of a stored message.
type UpdateStatusJob struct {
	MessageID string        `json:"messageId"`
	Status    models.Status `json:"status"`
}

// Job is the wire envelope for exactly one variant. Attempt counts
// completed executions; it starts at zero and is bumped on every retry.
type Job struct {
	Kind    JobKind `json:"kind"`
	Attempt int     `json:"attempt"`

	StoreMessage *StoreMessageJob `json:"storeMessage,omitempty"`
	UpdateStatus *UpdateStatusJob `json:"updateStatus,omitempty"`
}

// NewStoreMessageJob wraps msg in a job envelope.
func NewStoreMessageJob(msg models.Message) Job {
	return Job{Kind: KindStoreMessage, StoreMessage: &StoreMessageJob{Message: msg}}
}

// NewUpdateStatusJob wraps a status transition in a job envelope.
func NewUpdateStatusJob(messageID string, status models.Status) Job {
	return Job{Kind: KindUpdateStatus, UpdateStatus: &UpdateStatusJob{MessageID: messageID, Status: status}}
}

// Validate checks that the envelope carries the variant its kind names.
func (j Job) Validate() error {
	switch j.Kind {
	case KindStoreMessage:
		if j.StoreMessage == nil {
			return fmt.Errorf("storeMessage job without payload")
		}
		if j.StoreMessage.Message.MessageID == "" {
			return fmt.Errorf("storeMessage job without messageId")
		}
	case KindUpdateStatus:
		if j.UpdateStatus == nil {
			return fmt.Errorf("updateStatus job without payload")
		}
		if !j.UpdateStatus.Status.Valid() {
			return fmt.Errorf("updateStatus job with unknown status %q", j.UpdateStatus.Status)
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}
