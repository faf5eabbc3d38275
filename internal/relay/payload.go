package relay

import "github.com/bhaavyasura7/E2ee-chat/internal/models"

// Payload types on the shared bus channel.
const (
	TypeMessage      = "message"
	TypeStatusUpdate = "statusUpdate"
)

// Payload is the discriminated unit published on the bus. For
// TypeMessage all envelope fields are set and Receiver is the routing
// target. For TypeStatusUpdate only MessageID, Status and Sender are
// set; Sender names the original message sender, who receives the event.
type Payload struct {
	Type string `json:"type"`

	MessageID        string        `json:"messageId,omitempty"`
	Sender           string        `json:"sender,omitempty"`
	Receiver         string        `json:"receiver,omitempty"`
	EncryptedMessage string        `json:"encryptedMessage,omitempty"`
	EncryptedKey     string        `json:"encryptedKey,omitempty"`
	IV               string        `json:"iv,omitempty"`
	Status           models.Status `json:"status,omitempty"`
}

// Target returns the user identity this payload should be delivered to.
func (p Payload) Target() string {
	if p.Type == TypeStatusUpdate {
		return p.Sender
	}
	return p.Receiver
}
