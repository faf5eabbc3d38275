package gateway

import (
	"encoding/json"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// Client-to-server event names. Each maps to exactly one handler on the
// session; anything else is ignored with a warning.
const (
	EventRegisterPublicKey = "registerPublicKey"
	EventSendMessage       = "sendMessage"
	EventMessageDelivered  = "messageDelivered"
	EventMessageRead       = "messageRead"
)

// frame is the wire shape of every socket event in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outFrame is the serialization shape for server-to-client events.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RegisterPublicKeyEvent caches a user's public key for peers to look up.
type RegisterPublicKeyEvent struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}

// SendMessageEvent submits an already-encrypted message for relay and
// persistence. MessageID is optional; the gateway mints one if absent.
type SendMessageEvent struct {
	MessageID        string `json:"messageId,omitempty"`
	Sender           string `json:"sender"`
	Receiver         string `json:"receiver"`
	EncryptedMessage string `json:"encryptedMessage"`
	EncryptedKey     string `json:"encryptedKey"`
	IV               string `json:"iv"`
}

// ReceiptEvent acknowledges delivery or read of a message back to its
// sender. SenderID names the original sender, who receives the update.
type ReceiptEvent struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// ReceiveMessageEvent is the server-to-client delivery of a message.
type ReceiveMessageEvent struct {
	MessageID        string `json:"messageId"`
	Sender           string `json:"sender"`
	Receiver         string `json:"receiver"`
	EncryptedMessage string `json:"encryptedMessage"`
	EncryptedKey     string `json:"encryptedKey"`
	IV               string `json:"iv"`
}

// StatusUpdateEvent is the server-to-client delivery acknowledgement.
type StatusUpdateEvent struct {
	MessageID string        `json:"messageId"`
	Status    models.Status `json:"status"`
	Sender    string        `json:"sender"`
}
