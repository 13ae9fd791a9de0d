package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tageampi/vintohub/internal/models"
)

type messageStore interface {
	Create(ctx context.Context, input models.NewMessage) (*models.Message, error)
	GetConversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
	ListByParticipant(ctx context.Context, userID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID int64) error
}

// exerciseMessageStore checks the behaviour every message store shares.
// userA and userB must not have any messages yet.
func exerciseMessageStore(t *testing.T, store messageStore, userA, userB, userC int64) {
	ctx := context.Background()

	t.Run("conversation is ordered by insertion across senders", func(t *testing.T) {
		req := require.New(t)
		var created []models.Message
		for i, content := range []string{"one", "two", "three", "four"} {
			from, to := userA, userB
			if i%2 == 1 {
				from, to = userB, userA
			}
			message, err := store.Create(ctx, models.NewMessage{SenderID: from, ReceiverID: to, Content: content})
			req.NoError(err)
			req.False(message.Read)
			req.False(message.CreatedAt.IsZero())
			created = append(created, *message)
		}
		_, err := store.Create(ctx, models.NewMessage{SenderID: userA, ReceiverID: userC, Content: "elsewhere"})
		req.NoError(err)

		forward, err := store.GetConversation(ctx, userA, userB)
		req.NoError(err)
		backward, err := store.GetConversation(ctx, userB, userA)
		req.NoError(err)

		req.Equal(forward, backward)
		req.Len(forward, len(created))
		for i := range forward {
			req.Equal(created[i].ID, forward[i].ID)
			req.Equal(created[i].Content, forward[i].Content)
			if i > 0 {
				req.True(forward[i-1].Before(forward[i]))
			}
		}
	})

	t.Run("participant listing covers every counterpart", func(t *testing.T) {
		req := require.New(t)
		all, err := store.ListByParticipant(ctx, userA)
		req.NoError(err)
		req.Len(all, 5)
		for i := 1; i < len(all); i++ {
			req.True(all[i-1].Before(all[i]))
		}

		onlyC, err := store.ListByParticipant(ctx, userC)
		req.NoError(err)
		req.Len(onlyC, 1)
	})

	t.Run("mark read only touches one direction and is idempotent", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.MarkRead(ctx, userA, userB))
		once, err := store.GetConversation(ctx, userA, userB)
		req.NoError(err)

		req.NoError(store.MarkRead(ctx, userA, userB))
		twice, err := store.GetConversation(ctx, userA, userB)
		req.NoError(err)

		req.Equal(once, twice)
		for _, message := range twice {
			req.Equal(message.SenderID == userA, message.Read)
		}

		elsewhere, err := store.GetConversation(ctx, userA, userC)
		req.NoError(err)
		req.False(elsewhere[0].Read)
	})
}
