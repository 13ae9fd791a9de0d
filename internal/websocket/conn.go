package chatws

import (
	"errors"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

var ErrConnClosed = errors.New("connection closed")

const (
	writeWait           = 10 * time.Second
	defaultSendCapacity = 32
)

// transport is the subset of a websocket connection the server uses.
// *websocket.Conn from gofiber/contrib/websocket satisfies it.
type transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type liveness int

const (
	aliveConfirmed liveness = iota
	aliveAwaitingPong
)

// Conn is one live socket. Identity and liveness fields are owned by the
// Registry and only touched under its lock.
type Conn struct {
	id        string
	transport transport

	userID   int64
	pinnedID int64
	state    liveness

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	done     chan struct{}
	pumpDone chan struct{}
}

func NewConn(t transport, sendCapacity int) *Conn {
	if sendCapacity <= 0 {
		sendCapacity = defaultSendCapacity
	}
	return &Conn{
		id:        uuid.NewString(),
		transport: t,
		send:      make(chan []byte, sendCapacity),
		done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Pin binds the connection to an identity proven at upgrade time. Auth
// frames claiming any other id are then rejected.
func (c *Conn) Pin(userID int64) {
	c.pinnedID = userID
}

// Push queues a frame for the write pump. A full queue means the peer is not
// keeping up and the frame is dropped.
func (c *Conn) Push(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send queue full")
	}
}

// WritePump drains queued frames to the socket until the connection closes.
func (c *Conn) WritePump() {
	defer close(c.pumpDone)
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ping holds the lock so that a probe never races the transport being
// handed back after Close.
func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	return c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close shuts the socket down. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.transport.Close()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
