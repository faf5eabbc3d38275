package models

import "time"

// Status is the delivery state of a message. Transitions only move
// forward: sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank returns the position of s in the forward order. Unknown statuses
// rank below sent so they can never overwrite a stored one.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Message represents a persisted encrypted message. The server only ever
// handles the three opaque envelope fields; plaintext exists on clients.
type Message struct {
	MessageID        string    `json:"messageId"` // ULID, unique
	Sender           string    `json:"sender"`
	Receiver         string    `json:"receiver"`
	EncryptedMessage string    `json:"encryptedMessage"` // AES-GCM ciphertext+tag (base64)
	EncryptedKey     string    `json:"encryptedKey"`     // RSA-OAEP wrapped AES key (base64)
	IV               string    `json:"iv"`               // 96-bit GCM nonce (base64)
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}
