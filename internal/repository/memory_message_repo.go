package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tageampi/vintohub/internal/models"
)

// MemoryMessageRepository keeps the message log in process memory. Messages
// are lost on restart.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []models.Message
	nextID   int64
	lastAt   time.Time
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages: make([]models.Message, 0, 64),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryMessageRepository) Create(_ context.Context, input models.NewMessage) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := r.now()
	if createdAt.Before(r.lastAt) {
		createdAt = r.lastAt
	}
	r.lastAt = createdAt

	message := models.Message{
		ID:         r.nextID,
		SenderID:   input.SenderID,
		ReceiverID: input.ReceiverID,
		Content:    input.Content,
		CreatedAt:  createdAt,
	}
	r.nextID++
	r.messages = append(r.messages, message)

	return &message, nil
}

func (r *MemoryMessageRepository) GetConversation(_ context.Context, userA, userB int64) ([]models.Message, error) {
	return r.filter(func(m models.Message) bool {
		return (m.SenderID == userA && m.ReceiverID == userB) ||
			(m.SenderID == userB && m.ReceiverID == userA)
	}), nil
}

func (r *MemoryMessageRepository) ListByParticipant(_ context.Context, userID int64) ([]models.Message, error) {
	return r.filter(func(m models.Message) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	}), nil
}

func (r *MemoryMessageRepository) MarkRead(_ context.Context, senderID, receiverID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		m := &r.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
		}
	}
	return nil
}

func (r *MemoryMessageRepository) filter(keep func(models.Message) bool) []models.Message {
	r.mu.RLock()
	out := lo.Filter(r.messages, func(m models.Message, _ int) bool { return keep(m) })
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
