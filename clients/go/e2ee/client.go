package e2ee

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Message is a decrypted message handed to the OnMessage callback.
type Message struct {
	MessageID string
	Sender    string
	Plaintext []byte
}

// StatusUpdate reports a delivery or read receipt for a message this
// client sent earlier.
type StatusUpdate struct {
	MessageID string
	Status    string
}

// Client is a connected chat participant. It holds the websocket, the
// local keypair and the callbacks, and encrypts on send / decrypts on
// receive so callers only ever see plaintext.
type Client struct {
	UserID string
	Keys   *KeyPair

	// OnMessage is invoked for each message addressed to this client,
	// after decryption and after the delivery receipt has been sent.
	OnMessage func(Message)

	// OnStatusUpdate is invoked when a message this client sent is
	// acknowledged as delivered or read.
	OnStatusUpdate func(StatusUpdate)

	// OnError is invoked for per-message failures that do not tear down
	// the connection, such as an envelope that fails to decrypt.
	OnError func(error)

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type inboundMessage struct {
	MessageID        string `json:"messageId"`
	Sender           string `json:"sender"`
	Receiver         string `json:"receiver"`
	EncryptedMessage string `json:"encryptedMessage"`
	EncryptedKey     string `json:"encryptedKey"`
	IV               string `json:"iv"`
}

type inboundStatus struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Sender    string `json:"sender"`
}

// Connect dials the relay's /ws endpoint, authenticating with the bearer
// token, and registers the client's public key so peers can encrypt to
// it. If keys is nil a fresh keypair is generated. The returned client is
// live: callbacks fire from a background goroutine until Close is called
// or the server drops the connection.
func Connect(serverURL, userID, token string, keys *KeyPair) (*Client, error) {
	if keys == nil {
		var err error
		keys, err = GenerateKeyPair()
		if err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected: %s", resp.Status)
		}
		return nil, err
	}

	c := &Client{
		UserID: userID,
		Keys:   keys,
		conn:   conn,
		done:   make(chan struct{}),
	}

	if err := c.RegisterPublicKey(); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// RegisterPublicKey publishes the client's public key under its user ID.
// Connect calls this once; calling it again refreshes the cached key.
func (c *Client) RegisterPublicKey() error {
	return c.emit("registerPublicKey", map[string]string{
		"userId":    c.UserID,
		"publicKey": c.Keys.PublicKey,
	})
}

// Send encrypts plaintext for the receiver's public key and submits it.
// It returns the minted message ID so the caller can correlate later
// status updates.
func (c *Client) Send(receiver string, plaintext []byte, receiverPublicKey string) (string, error) {
	env, err := Encrypt(plaintext, receiverPublicKey)
	if err != nil {
		return "", err
	}

	messageID := ulid.Make().String()
	err = c.emit("sendMessage", map[string]string{
		"messageId":        messageID,
		"sender":           c.UserID,
		"receiver":         receiver,
		"encryptedMessage": env.EncryptedMessage,
		"encryptedKey":     env.EncryptedKey,
		"iv":               env.IV,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// MarkRead reports that the user has read a message, notifying the
// original sender.
func (c *Client) MarkRead(messageID, senderID string) error {
	return c.emit("messageRead", map[string]string{
		"messageId": messageID,
		"senderId":  senderID,
	})
}

// Close tears down the websocket. Callbacks stop firing once the read
// loop observes the closed connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) emit(event string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data})
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var f clientFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
			default:
				c.reportError(err)
			}
			return
		}

		switch f.Event {
		case "receiveMessage":
			c.handleMessage(f.Data)
		case "statusUpdate":
			c.handleStatus(f.Data)
		}
	}
}

func (c *Client) handleMessage(data json.RawMessage) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		c.reportError(err)
		return
	}

	// Acknowledge delivery before decrypting: the sender learns the
	// message arrived even if this client cannot read it.
	if err := c.emit("messageDelivered", map[string]string{
		"messageId": in.MessageID,
		"senderId":  in.Sender,
	}); err != nil {
		c.reportError(err)
	}

	plaintext, err := Decrypt(&Envelope{
		EncryptedMessage: in.EncryptedMessage,
		EncryptedKey:     in.EncryptedKey,
		IV:               in.IV,
	}, c.Keys.Private())
	if err != nil {
		c.reportError(err)
		return
	}

	if c.OnMessage != nil {
		c.OnMessage(Message{
			MessageID: in.MessageID,
			Sender:    in.Sender,
			Plaintext: plaintext,
		})
	}
}

func (c *Client) handleStatus(data json.RawMessage) {
	var in inboundStatus
	if err := json.Unmarshal(data, &in); err != nil {
		c.reportError(err)
		return
	}
	if c.OnStatusUpdate != nil {
		c.OnStatusUpdate(StatusUpdate{MessageID: in.MessageID, Status: in.Status})
	}
}

func (c *Client) reportError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
