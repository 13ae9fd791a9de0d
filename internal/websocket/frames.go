package chatws

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/tageampi/vintohub/internal/models"
)

const (
	FrameAuth    = "auth"
	FrameMessage = "message"

	StatusSent = "sent"
)

var validate = validator.New()

type envelope struct {
	Type string `json:"type"`
}

type AuthFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId" validate:"gt=0"`
}

type MessageFrame struct {
	Type       string `json:"type"`
	SenderID   int64  `json:"senderId" validate:"gt=0"`
	ReceiverID int64  `json:"receiverId" validate:"gt=0,nefield=SenderID"`
	Content    string `json:"content" validate:"required"`
}

// MessagePush is the server to client message frame. Status is set only on
// the copy echoed to the sender.
type MessagePush struct {
	Type string `json:"type"`
	models.Message
	Status string `json:"status,omitempty"`
}

func frameType(payload []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	return env.Type, nil
}

func decodeFrame[T any](payload []byte) (*T, error) {
	var frame T
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if err := validate.Struct(frame); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return &frame, nil
}

func encodePush(message models.Message, status string) ([]byte, error) {
	return json.Marshal(MessagePush{
		Type:    FrameMessage,
		Message: message,
		Status:  status,
	})
}
