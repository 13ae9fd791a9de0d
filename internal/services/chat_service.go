package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tageampi/vintohub/internal/models"
	"github.com/tageampi/vintohub/internal/repository"
)

var ErrInvalidInput = errors.New("invalid input")

const unknownUsername = "Unknown User"

// MessageStore is the durable message log. Implementations return messages
// ordered by created_at then id, and MarkRead must be idempotent.
type MessageStore interface {
	Create(ctx context.Context, input models.NewMessage) (*models.Message, error)
	GetConversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
	ListByParticipant(ctx context.Context, userID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID int64) error
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type ChatService struct {
	messages MessageStore
	users    userReader
}

func NewChatService(messages MessageStore, users userReader) *ChatService {
	return &ChatService{
		messages: messages,
		users:    users,
	}
}

// SendMessage persists a message from senderID to receiverID. A returned
// message has been durably written.
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	content string,
) (*models.Message, error) {
	if senderID <= 0 || receiverID <= 0 || senderID == receiverID {
		return nil, ErrInvalidInput
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	message, err := s.messages.Create(ctx, models.NewMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    trimmed,
	})
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	return message, nil
}

// GetConversation returns the thread between viewerID and otherID as it was
// before the call, then marks everything otherID sent to the viewer as read.
// Messages still flagged unread in the result are the ones the viewer had
// not seen; the next fetch shows them read.
func (s *ChatService) GetConversation(
	ctx context.Context,
	viewerID int64,
	otherID int64,
) ([]models.Message, error) {
	if viewerID <= 0 || otherID <= 0 {
		return nil, ErrInvalidInput
	}

	messages, err := s.messages.GetConversation(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}

	if err := s.messages.MarkRead(ctx, otherID, viewerID); err != nil {
		return nil, err
	}

	return messages, nil
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	userID int64,
) ([]models.ConversationSummary, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}

	messages, err := s.messages.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := BuildConversationSummaries(userID, messages)
	for i := range summaries {
		name, err := s.displayName(ctx, summaries[i].UserID)
		if err != nil {
			return nil, err
		}
		summaries[i].Username = name
	}

	return summaries, nil
}

func (s *ChatService) MarkRead(ctx context.Context, senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return ErrInvalidInput
	}
	return s.messages.MarkRead(ctx, senderID, receiverID)
}

func (s *ChatService) displayName(ctx context.Context, userID int64) (string, error) {
	if s.users == nil {
		return unknownUsername, nil
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unknownUsername, nil
		}
		return "", fmt.Errorf("resolve user %d: %w", userID, err)
	}
	if user.Username == "" {
		return unknownUsername, nil
	}
	return user.Username, nil
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
