//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=../mocks/mock_message_sender.go -package=mocks
package chatws

import (
	"context"
	"log/slog"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/tageampi/vintohub/internal/models"
)

// MessageSender persists a chat message and returns the stored record.
type MessageSender interface {
	SendMessage(ctx context.Context, senderID, receiverID int64, content string) (*models.Message, error)
}

// Router applies the chat protocol to frames read from live connections.
type Router struct {
	registry *Registry
	sender   MessageSender
	log      *slog.Logger
}

func NewRouter(registry *Registry, sender MessageSender, log *slog.Logger) *Router {
	return &Router{
		registry: registry,
		sender:   sender,
		log:      log,
	}
}

// Serve owns conn for its whole life: it registers it, starts the write
// pump, handles frames until the socket fails and then deregisters it.
func (r *Router) Serve(ctx context.Context, conn *Conn) {
	r.registry.Register(conn)
	if conn.pinnedID != 0 {
		r.registry.Authenticate(conn, conn.pinnedID)
	}
	conn.transport.SetPongHandler(func(string) error {
		r.registry.MarkAlive(conn)
		return nil
	})

	go conn.WritePump()
	defer func() {
		r.registry.Deregister(conn)
		_ = conn.Close()
		<-conn.pumpDone
		r.log.Debug("Connection closed", "conn_id", conn.ID())
	}()

	r.log.Debug("Connection opened", "conn_id", conn.ID(), "pinned_user_id", conn.pinnedID)

	for {
		_, payload, err := conn.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn("Websocket read failed", "conn_id", conn.ID(), "err", err)
			}
			return
		}
		r.HandleFrame(ctx, conn, payload)
	}
}

// HandleFrame processes one inbound frame. Bad frames are logged and
// dropped; the connection stays open.
func (r *Router) HandleFrame(ctx context.Context, conn *Conn, payload []byte) {
	kind, err := frameType(payload)
	if err != nil {
		r.log.Warn("Dropping malformed frame", "conn_id", conn.ID(), "err", err)
		return
	}

	switch kind {
	case FrameAuth:
		r.handleAuth(conn, payload)
	case FrameMessage:
		r.handleMessage(ctx, conn, payload)
	default:
		r.log.Warn("Dropping frame of unknown type", "conn_id", conn.ID(), "type", kind)
	}
}

func (r *Router) handleAuth(conn *Conn, payload []byte) {
	frame, err := decodeFrame[AuthFrame](payload)
	if err != nil {
		r.log.Warn("Dropping auth frame", "conn_id", conn.ID(), "err", err)
		return
	}
	if conn.pinnedID != 0 && frame.UserID != conn.pinnedID {
		r.log.Warn("Auth frame does not match token identity",
			"conn_id", conn.ID(), "claimed_user_id", frame.UserID, "user_id", conn.pinnedID)
		return
	}
	if !r.registry.Authenticate(conn, frame.UserID) {
		return
	}
	r.log.Debug("Connection authenticated", "conn_id", conn.ID(), "user_id", frame.UserID)
}

func (r *Router) handleMessage(ctx context.Context, conn *Conn, payload []byte) {
	frame, err := decodeFrame[MessageFrame](payload)
	if err != nil {
		r.log.Warn("Dropping message frame", "conn_id", conn.ID(), "err", err)
		return
	}

	userID := r.registry.UserID(conn)
	if userID == 0 {
		r.log.Warn("Dropping message from unauthenticated connection", "conn_id", conn.ID())
		return
	}
	if frame.SenderID != userID {
		r.log.Warn("Dropping message with foreign sender",
			"conn_id", conn.ID(), "user_id", userID, "sender_id", frame.SenderID)
		return
	}
	if strings.TrimSpace(frame.Content) == "" {
		r.log.Warn("Dropping empty message", "conn_id", conn.ID(), "user_id", userID)
		return
	}

	message, err := r.sender.SendMessage(ctx, frame.SenderID, frame.ReceiverID, frame.Content)
	if err != nil {
		r.log.Error("Failed to persist message",
			"conn_id", conn.ID(), "sender_id", frame.SenderID, "receiver_id", frame.ReceiverID, "err", err)
		return
	}

	push, err := encodePush(*message, "")
	if err != nil {
		r.log.Error("Failed to encode message push", "message_id", message.ID, "err", err)
		return
	}
	for _, receiver := range r.registry.ConnectionsFor(message.ReceiverID) {
		if err := receiver.Push(push); err != nil {
			r.log.Warn("Dropping push to receiver", "conn_id", receiver.ID(), "message_id", message.ID, "err", err)
		}
	}

	echo, err := encodePush(*message, StatusSent)
	if err != nil {
		r.log.Error("Failed to encode sender echo", "message_id", message.ID, "err", err)
		return
	}
	if err := conn.Push(echo); err != nil {
		r.log.Warn("Dropping sender echo", "conn_id", conn.ID(), "message_id", message.ID, "err", err)
	}
}
