package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
	"github.com/bhaavyasura7/E2ee-chat/internal/queue"
	"github.com/bhaavyasura7/E2ee-chat/internal/relay"
)

// wire is the per-connection transport: ordered, reliable delivery of
// discrete JSON messages. *websocket.Conn satisfies it; tests inject an
// in-memory pipe.
type wire interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Session is the per-connection state machine. Inbound events run one at
// a time on the read loop; outbound writes are serialized through the
// out channel. A failing dependency fails that one call, never the loop.
type Session struct {
	userID  string
	connRef string

	conn   wire
	out    chan outFrame
	done   chan struct{}
	logger zerolog.Logger

	gw *Gateway
}

// send queues an outbound event. It reports false when the session is
// shutting down or its write buffer is full; the caller treats that as
// a missed best-effort delivery.
func (s *Session) send(event string, data any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- outFrame{Event: event, Data: data}:
		return true
	default:
		s.logger.Warn().Str("event", event).Msg("write buffer full, dropping event")
		return false
	}
}

// writeLoop drains the out channel onto the connection.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.out:
			if err := s.conn.WriteJSON(f); err != nil {
				s.logger.Debug().Err(err).Msg("write failed, closing session")
				s.conn.Close()
				return
			}
		}
	}
}

// readLoop processes inbound frames until the connection drops.
func (s *Session) readLoop(ctx context.Context) {
	defer close(s.done)

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		s.dispatch(ctx, f)
	}
}

// dispatch routes one inbound frame to its handler. Each handler's side
// effects are exactly a bus publish and/or a queue enqueue.
func (s *Session) dispatch(ctx context.Context, f frame) {
	switch f.Event {
	case EventRegisterPublicKey:
		s.handleRegisterPublicKey(ctx, f.Data)
	case EventSendMessage:
		s.handleSendMessage(ctx, f.Data)
	case EventMessageDelivered:
		s.handleReceipt(ctx, f.Data, models.StatusDelivered)
	case EventMessageRead:
		s.handleReceipt(ctx, f.Data, models.StatusRead)
	default:
		s.logger.Warn().Str("event", f.Event).Msg("ignoring unknown event")
	}
}

func (s *Session) handleRegisterPublicKey(ctx context.Context, data json.RawMessage) {
	var ev RegisterPublicKeyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed registerPublicKey event")
		return
	}
	if ev.PublicKey == "" {
		return
	}
	// The key is registered for the authenticated identity, whatever
	// userId the body claims.
	if err := s.gw.directory.Register(ctx, s.userID, ev.PublicKey); err != nil {
		s.logger.Error().Err(err).Msg("public key registration failed")
	}
}

// handleSendMessage publishes the message on the bus and enqueues its
// durable storeMessage job. The two paths are independent: a failure on
// one does not roll back the other.
func (s *Session) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var ev SendMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed sendMessage event")
		return
	}
	if ev.Receiver == "" || ev.EncryptedMessage == "" || ev.EncryptedKey == "" || ev.IV == "" {
		s.logger.Warn().Msg("sendMessage event missing required fields")
		return
	}

	if ev.MessageID == "" {
		ev.MessageID = ulid.Make().String()
	}
	// The sender is always the authenticated identity.
	ev.Sender = s.userID

	p := relay.Payload{
		Type:             relay.TypeMessage,
		MessageID:        ev.MessageID,
		Sender:           ev.Sender,
		Receiver:         ev.Receiver,
		EncryptedMessage: ev.EncryptedMessage,
		EncryptedKey:     ev.EncryptedKey,
		IV:               ev.IV,
	}
	if err := s.gw.bus.Publish(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("message_id", ev.MessageID).Msg("bus publish failed, message recoverable via store")
	}

	job := queue.NewStoreMessageJob(models.Message{
		MessageID:        ev.MessageID,
		Sender:           ev.Sender,
		Receiver:         ev.Receiver,
		EncryptedMessage: ev.EncryptedMessage,
		EncryptedKey:     ev.EncryptedKey,
		IV:               ev.IV,
		Status:           models.StatusSent,
		CreatedAt:        time.Now().UTC(),
	})
	if err := s.gw.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("message_id", ev.MessageID).Msg("enqueue failed, message not durable")
	}
}

func (s *Session) handleReceipt(ctx context.Context, data json.RawMessage, status models.Status) {
	var ev ReceiptEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed receipt event")
		return
	}
	if ev.MessageID == "" || ev.SenderID == "" {
		return
	}

	p := relay.Payload{
		Type:      relay.TypeStatusUpdate,
		MessageID: ev.MessageID,
		Status:    status,
		Sender:    ev.SenderID,
	}
	if err := s.gw.bus.Publish(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("message_id", ev.MessageID).Msg("bus publish failed for status update")
	}

	if err := s.gw.queue.Enqueue(ctx, queue.NewUpdateStatusJob(ev.MessageID, status)); err != nil {
		s.logger.Error().Err(err).Str("message_id", ev.MessageID).Msg("enqueue failed for status update")
	}
}
