package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/clients/go/e2ee"
	"github.com/bhaavyasura7/E2ee-chat/internal/auth"
	"github.com/bhaavyasura7/E2ee-chat/internal/directory"
	"github.com/bhaavyasura7/E2ee-chat/internal/models"
	"github.com/bhaavyasura7/E2ee-chat/internal/presence"
	"github.com/bhaavyasura7/E2ee-chat/internal/queue"
	"github.com/bhaavyasura7/E2ee-chat/internal/relay"
	"github.com/bhaavyasura7/E2ee-chat/internal/store"
)

// fakeConn is an in-memory wire for driving a session without a socket.
type fakeConn struct {
	in        chan frame
	mu        sync.Mutex
	written   []outFrame
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case f := <-c.in:
		*(v.(*frame)) = f
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v.(outFrame))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) emit(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	c.in <- frame{Event: event, Data: raw}
}

func (c *fakeConn) frames() []outFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]outFrame, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) lastEvent(event string) (outFrame, bool) {
	for _, f := range c.frames() {
		if f.Event == event {
			return f, true
		}
	}
	return outFrame{}, false
}

// pipeline is a full single-instance stack on in-memory fakes plus the
// SQLite store.
type pipeline struct {
	gw    *Gateway
	bus   *relay.MemoryBus
	queue *queue.MemoryQueue
	reg   *presence.MemoryRegistry
	dir   *directory.MemoryDirectory
	store *store.SQLiteStore
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st, err := store.NewSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	bus := relay.NewMemoryBus()
	q := queue.NewMemoryQueue()
	reg := presence.NewMemoryRegistry()
	dir := directory.NewMemoryDirectory()

	gw := New(auth.NewJWTAuthenticator("test-secret"), bus, q, reg, dir, zerolog.Nop())

	router := relay.NewRouter(bus, gw.Hub(), zerolog.Nop())
	go router.Run(ctx)

	worker := queue.NewWorker(q, st, zerolog.Nop(), 3, time.Millisecond)
	go worker.Run(ctx)

	// Let the router subscription attach
	time.Sleep(10 * time.Millisecond)

	return &pipeline{gw: gw, bus: bus, queue: q, reg: reg, dir: dir, store: st}
}

func (p *pipeline) connect(t *testing.T, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	go p.gw.runSession(context.Background(), conn, userID)
	waitFor(t, func() bool {
		online, _ := p.reg.IsOnline(context.Background(), userID)
		return online
	})
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func (p *pipeline) messageStatus(t *testing.T, user, messageID string) (models.Status, bool) {
	t.Helper()
	msgs, err := p.store.FindByParticipant(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.MessageID == messageID {
			return m.Status, true
		}
	}
	return "", false
}

// TestSendDeliverReadFlow walks the whole sent -> delivered -> read path
// through the gateway, bus, router, queue and store.
func TestSendDeliverReadFlow(t *testing.T) {
	p := newPipeline(t)

	aliceKeys, err := e2ee.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	alice := p.connect(t, "alice")
	defer alice.Close()
	bob := p.connect(t, "bob")
	defer bob.Close()

	// Alice registers her public key; bob looks it up and encrypts
	alice.emit(t, EventRegisterPublicKey, RegisterPublicKeyEvent{UserID: "alice", PublicKey: aliceKeys.PublicKey})
	waitFor(t, func() bool {
		_, ok, _ := p.dir.Lookup(context.Background(), "alice")
		return ok
	})

	alicePub, _, _ := p.dir.Lookup(context.Background(), "alice")
	env, err := e2ee.Encrypt([]byte("hi"), alicePub)
	if err != nil {
		t.Fatal(err)
	}

	bob.emit(t, EventSendMessage, SendMessageEvent{
		MessageID:        "01TESTMESSAGE0000000000000",
		Receiver:         "alice",
		EncryptedMessage: env.EncryptedMessage,
		EncryptedKey:     env.EncryptedKey,
		IV:               env.IV,
	})

	// Real-time path: alice receives the envelope and can decrypt it
	waitFor(t, func() bool { _, ok := alice.lastEvent(relay.EventReceiveMessage); return ok })
	f, _ := alice.lastEvent(relay.EventReceiveMessage)
	received := f.Data.(ReceiveMessageEvent)
	if received.Sender != "bob" {
		t.Fatalf("expected sender bob, got %q", received.Sender)
	}
	pt, err := e2ee.Decrypt(&e2ee.Envelope{
		EncryptedMessage: received.EncryptedMessage,
		EncryptedKey:     received.EncryptedKey,
		IV:               received.IV,
	}, aliceKeys.Private())
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "hi" {
		t.Fatalf("expected plaintext 'hi', got %q", pt)
	}

	// Durable path: the record lands with status sent
	waitFor(t, func() bool {
		s, ok := p.messageStatus(t, "alice", received.MessageID)
		return ok && s == models.StatusSent
	})

	// Alice acknowledges delivery; bob sees the update, store advances
	alice.emit(t, EventMessageDelivered, ReceiptEvent{MessageID: received.MessageID, SenderID: "bob"})
	waitFor(t, func() bool { _, ok := bob.lastEvent(relay.EventStatusUpdate); return ok })
	su, _ := bob.lastEvent(relay.EventStatusUpdate)
	if got := su.Data.(StatusUpdateEvent); got.Status != models.StatusDelivered || got.MessageID != received.MessageID {
		t.Fatalf("unexpected status update: %+v", got)
	}
	waitFor(t, func() bool {
		s, _ := p.messageStatus(t, "alice", received.MessageID)
		return s == models.StatusDelivered
	})

	alice.emit(t, EventMessageRead, ReceiptEvent{MessageID: received.MessageID, SenderID: "bob"})
	waitFor(t, func() bool {
		s, _ := p.messageStatus(t, "alice", received.MessageID)
		return s == models.StatusRead
	})
}

// TestOfflineReceiverStillPersisted: the real-time path drops silently,
// the durable path still lands the record for catch-up.
func TestOfflineReceiverStillPersisted(t *testing.T) {
	p := newPipeline(t)

	bob := p.connect(t, "bob")
	defer bob.Close()

	bob.emit(t, EventSendMessage, SendMessageEvent{
		Receiver:         "alice", // not connected
		EncryptedMessage: "ct",
		EncryptedKey:     "wk",
		IV:               "iv",
	})

	waitFor(t, func() bool {
		msgs, _ := p.store.FindByParticipant(context.Background(), "alice")
		return len(msgs) == 1
	})
	msgs, _ := p.store.FindByParticipant(context.Background(), "alice")
	if msgs[0].MessageID == "" {
		t.Fatal("gateway should mint a message ID when the client omits one")
	}
	if msgs[0].Status != models.StatusSent {
		t.Fatalf("expected status sent, got %s", msgs[0].Status)
	}
}

func TestSenderIsAuthenticatedIdentity(t *testing.T) {
	p := newPipeline(t)

	mallory := p.connect(t, "mallory")
	defer mallory.Close()

	mallory.emit(t, EventSendMessage, SendMessageEvent{
		Sender:           "bob", // spoofed
		Receiver:         "alice",
		EncryptedMessage: "ct",
		EncryptedKey:     "wk",
		IV:               "iv",
	})

	waitFor(t, func() bool {
		msgs, _ := p.store.FindByParticipant(context.Background(), "alice")
		return len(msgs) == 1
	})
	msgs, _ := p.store.FindByParticipant(context.Background(), "alice")
	if msgs[0].Sender != "mallory" {
		t.Fatalf("sender should be the authenticated user, got %q", msgs[0].Sender)
	}
}

func TestPresenceClearedOnDisconnect(t *testing.T) {
	p := newPipeline(t)

	alice := p.connect(t, "alice")
	online, _ := p.reg.IsOnline(context.Background(), "alice")
	if !online {
		t.Fatal("alice should be online while connected")
	}

	alice.Close()
	waitFor(t, func() bool {
		online, _ := p.reg.IsOnline(context.Background(), "alice")
		return !online
	})
}

func TestUnknownEventIgnored(t *testing.T) {
	p := newPipeline(t)

	bob := p.connect(t, "bob")
	defer bob.Close()

	bob.emit(t, "selfDestruct", map[string]string{"countdown": "10"})

	// The session must survive and keep handling real events
	bob.emit(t, EventSendMessage, SendMessageEvent{
		Receiver:         "alice",
		EncryptedMessage: "ct",
		EncryptedKey:     "wk",
		IV:               "iv",
	})
	waitFor(t, func() bool {
		msgs, _ := p.store.FindByParticipant(context.Background(), "alice")
		return len(msgs) == 1
	})
}

// TestHandshakeRequiresToken covers connection rejection before any
// event is processed.
func TestHandshakeRequiresToken(t *testing.T) {
	p := newPipeline(t)

	srv := httptest.NewServer(http.HandlerFunc(p.gw.ServeWS))
	defer srv.Close()

	// No token at all
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["error"], "No token provided") {
		t.Fatalf("expected no-token reason, got %q", body["error"])
	}

	// Garbage token
	resp2, err := http.Get(srv.URL + "?token=garbage")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp2.StatusCode)
	}
	var body2 map[string]string
	json.NewDecoder(resp2.Body).Decode(&body2)
	if !strings.Contains(body2["error"], "Invalid token") {
		t.Fatalf("expected invalid-token reason, got %q", body2["error"])
	}
}
