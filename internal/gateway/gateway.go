// Package gateway owns the socket side of a relay instance: handshake
// authentication, the per-connection event loop, the local connection
// table, and the presence lifecycle around each connection.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/auth"
	"github.com/bhaavyasura7/E2ee-chat/internal/directory"
	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
	"github.com/bhaavyasura7/E2ee-chat/internal/presence"
	"github.com/bhaavyasura7/E2ee-chat/internal/queue"
	"github.com/bhaavyasura7/E2ee-chat/internal/relay"
)

// sessionBuffer is the per-connection outbound buffer size.
const sessionBuffer = 32

// Gateway accepts websocket connections and wires each one into the
// presence registry, the relay bus and the durable queue.
type Gateway struct {
	authn     auth.Authenticator
	bus       relay.Bus
	queue     queue.Queue
	presence  presence.Registry
	directory directory.Directory
	hub       *Hub
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

// New creates a gateway. The hub it returns with (see Hub) doubles as
// the relay.Sink for this instance's router.
func New(authn auth.Authenticator, bus relay.Bus, q queue.Queue, reg presence.Registry, dir directory.Directory, logger zerolog.Logger) *Gateway {
	return &Gateway{
		authn:     authn,
		bus:       bus,
		queue:     q,
		presence:  reg,
		directory: dir,
		hub:       NewHub(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients connect from anywhere, same as the REST surface
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Hub returns the local connection table.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// ServeWS is the websocket endpoint. Authentication happens before the
// upgrade: a missing or invalid token is rejected with its reason and
// no session state is created.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.authn.Verify(bearerToken(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	g.runSession(r.Context(), conn, userID)
}

// runSession attaches a connection for userID and blocks until it drops.
func (g *Gateway) runSession(ctx context.Context, conn wire, userID string) {
	s := &Session{
		userID:  userID,
		connRef: uuid.NewString(),
		conn:    conn,
		out:     make(chan outFrame, sessionBuffer),
		done:    make(chan struct{}),
		logger:  g.logger.With().Str("user", userID).Logger(),
		gw:      g,
	}

	g.hub.add(s)
	metrics.ConnectedClients.Inc()
	if err := g.presence.SetOnline(ctx, userID, s.connRef); err != nil {
		// Presence is informational; the session still works locally.
		s.logger.Error().Err(err).Msg("presence set failed")
	}
	s.logger.Info().Str("conn", s.connRef).Msg("user connected")

	go s.writeLoop()
	s.readLoop(ctx)

	// A dropped connection unconditionally clears presence.
	g.hub.remove(s)
	metrics.ConnectedClients.Dec()
	if err := g.presence.ClearOnline(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.Error().Err(err).Msg("presence clear failed")
	}
	conn.Close()
	s.logger.Info().Str("conn", s.connRef).Msg("user disconnected")
}

// bearerToken extracts the token from the query string or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
