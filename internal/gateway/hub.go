package gateway

import (
	"sync"

	"github.com/bhaavyasura7/E2ee-chat/internal/relay"
)

// Hub is the table of connections local to this instance, keyed by user
// identity. It implements relay.Sink so the router can forward bus
// payloads to local receivers.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // userID -> connRef -> session
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[string]*Session)}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.sessions[s.userID]
	if !ok {
		conns = make(map[string]*Session)
		h.sessions[s.userID] = conns
	}
	conns[s.connRef] = s
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.sessions[s.userID]
	if !ok {
		return
	}
	delete(conns, s.connRef)
	if len(conns) == 0 {
		delete(h.sessions, s.userID)
	}
}

// Deliver sends event to every local connection of userID and returns
// how many connections accepted it.
func (h *Hub) Deliver(userID, event string, p relay.Payload) int {
	h.mu.RLock()
	conns := make([]*Session, 0, 4)
	for _, s := range h.sessions[userID] {
		conns = append(conns, s)
	}
	h.mu.RUnlock()

	n := 0
	for _, s := range conns {
		if s.send(event, payloadToEventData(event, p)) {
			n++
		}
	}
	return n
}

// payloadToEventData shapes a bus payload into the client-facing event
// body for receiveMessage or statusUpdate.
func payloadToEventData(event string, p relay.Payload) any {
	if event == relay.EventStatusUpdate {
		return StatusUpdateEvent{
			MessageID: p.MessageID,
			Status:    p.Status,
			Sender:    p.Sender,
		}
	}
	return ReceiveMessageEvent{
		MessageID:        p.MessageID,
		Sender:           p.Sender,
		Receiver:         p.Receiver,
		EncryptedMessage: p.EncryptedMessage,
		EncryptedKey:     p.EncryptedKey,
		IV:               p.IV,
	}
}
