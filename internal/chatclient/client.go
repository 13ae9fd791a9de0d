// Package chatclient is the consumer side of the chat protocol: a small
// connection state machine plus an in-memory log per counterpart.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tageampi/vintohub/internal/models"
)

var (
	ErrNotConnected   = errors.New("chat client is not connected")
	ErrAlreadyStarted = errors.New("chat client is already connecting or connected")
	ErrInvalidMessage = errors.New("message needs a receiver and non-empty content")
	ErrClosed         = errors.New("chat client closed while connecting")
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Message is a message frame received from the server. Status is "sent" on
// the echo of a message this client sent.
type Message struct {
	models.Message
	Status string `json:"status,omitempty"`
}

type inboundFrame struct {
	Type string `json:"type"`
	Message
}

type authFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

type messageFrame struct {
	Type       string `json:"type"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	UserID int64
	// Token is sent as a bearer header on the upgrade when set.
	Token string

	Dialer    *websocket.Dialer
	OnState   func(State)
	OnMessage func(counterpartID int64, message Message)
	Log       *slog.Logger
}

type Client struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	done    chan struct{}
	closing bool
	logs    map[int64][]Message

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		opts:  opts,
		log:   log,
		state: Disconnected,
		logs:  make(map[int64][]Message),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the latest connection ends. It is nil before the
// first successful dial.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect opens the socket and authenticates. The auth frame is on the wire
// before the client reports Connected, so any Send after that follows it.
// Reconnecting after a drop is left to the caller.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = Connecting
	c.closing = false
	c.mu.Unlock()
	c.notifyState(Connecting)

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		c.abortConnect()
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	if err := c.writeJSON(conn, authFrame{Type: "auth", UserID: c.opts.UserID}); err != nil {
		_ = conn.Close()
		c.abortConnect()
		return fmt.Errorf("send auth frame: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
		c.abortConnect()
		return ErrClosed
	}
	c.conn = conn
	c.done = done
	c.state = Connected
	c.mu.Unlock()
	c.notifyState(Connected)

	go c.readLoop(conn, done)
	return nil
}

// abortConnect returns a client that never reached Connected to Disconnected.
func (c *Client) abortConnect() {
	c.mu.Lock()
	c.state = Disconnected
	c.closing = false
	c.mu.Unlock()
	c.notifyState(Disconnected)
}

// Send writes a message frame. It fails with ErrNotConnected unless the
// client is connected; delivery is not acknowledged beyond the echo.
func (c *Client) Send(receiverID int64, content string) error {
	if receiverID <= 0 || strings.TrimSpace(content) == "" {
		return ErrInvalidMessage
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	return c.writeJSON(conn, messageFrame{
		Type:       "message",
		SenderID:   c.opts.UserID,
		ReceiverID: receiverID,
		Content:    content,
	})
}

// Conversation returns a copy of the log kept for counterpartID.
func (c *Client) Conversation(counterpartID int64) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.logs[counterpartID]...)
}

// Load replaces the log for counterpartID with history fetched over REST.
func (c *Client) Load(counterpartID int64, history []models.Message) {
	entries := make([]Message, 0, len(history))
	for _, message := range history {
		entries = append(entries, Message{Message: message})
	}

	c.mu.Lock()
	c.logs[counterpartID] = entries
	c.mu.Unlock()
}

// Close ends the current connection. Called while a dial is in flight, it
// makes that Connect fail with ErrClosed instead of connecting.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil && c.state == Connecting {
		c.closing = true
	}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.teardown(conn, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.teardown(conn, done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Chat connection lost", "err", err)
			}
			return
		}
		c.handleFrame(payload)
	}
}

func (c *Client) handleFrame(payload []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.log.Debug("Ignoring malformed frame", "err", err)
		return
	}
	if frame.Type != "message" {
		c.log.Debug("Ignoring frame", "type", frame.Type)
		return
	}

	counterpart := frame.Counterpart(c.opts.UserID)
	c.mu.Lock()
	c.logs[counterpart] = append(c.logs[counterpart], frame.Message)
	c.mu.Unlock()

	if c.opts.OnMessage != nil {
		c.opts.OnMessage(counterpart, frame.Message)
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// teardown drops conn if it is still the current connection.
func (c *Client) teardown(conn *websocket.Conn, done chan struct{}) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.notifyState(Disconnected)
	close(done)
}

func (c *Client) notifyState(state State) {
	if c.opts.OnState != nil {
		c.opts.OnState(state)
	}
}
