package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
)

// Events emitted to clients by the router.
const (
	EventReceiveMessage = "receiveMessage"
	EventStatusUpdate   = "statusUpdate"
)

// Sink delivers an event to the local connections of a user identity and
// returns how many connections received it. Zero is not an error:
// real-time delivery is best-effort and the durable path owns catch-up.
type Sink interface {
	Deliver(userID, event string, p Payload) int
}

// Router consumes the bus subscription on one instance and applies the
// routing rule: message -> receiver, statusUpdate -> original sender.
type Router struct {
	bus    Bus
	sink   Sink
	logger zerolog.Logger
}

// NewRouter creates a router forwarding bus payloads into sink.
func NewRouter(bus Bus, sink Sink, logger zerolog.Logger) *Router {
	return &Router{bus: bus, sink: sink, logger: logger}
}

// Run subscribes and forwards until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for p := range ch {
		r.route(p)
	}
	return ctx.Err()
}

func (r *Router) route(p Payload) {
	var event string
	switch p.Type {
	case TypeMessage:
		event = EventReceiveMessage
	case TypeStatusUpdate:
		event = EventStatusUpdate
	default:
		r.logger.Warn().Str("type", p.Type).Msg("unknown bus payload type")
		return
	}

	target := p.Target()
	if target == "" {
		r.logger.Warn().Str("type", p.Type).Msg("bus payload without target")
		return
	}

	n := r.sink.Deliver(target, event, p)
	if n == 0 {
		// Target not connected to this instance; the persisted record
		// is picked up via the missed-messages read after reconnect.
		metrics.MessagesDropped.WithLabelValues(p.Type).Inc()
		r.logger.Debug().
			Str("type", p.Type).
			Str("target", target).
			Str("message_id", p.MessageID).
			Msg("no local connection for payload")
		return
	}
	metrics.MessagesDelivered.WithLabelValues(p.Type).Inc()
}
