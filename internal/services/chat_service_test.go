package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tageampi/vintohub/internal/models"
	"github.com/tageampi/vintohub/internal/repository"
)

type failingUserReader struct{}

func (failingUserReader) GetByID(_ context.Context, _ int64) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func newTestChatService() (*ChatService, *repository.MemoryMessageRepository) {
	store := repository.NewMemoryMessageRepository()
	users := repository.NewMemoryUserRepository(map[int64]string{
		1: "alice",
		2: "bob",
		3: "carol",
	})
	return NewChatService(store, users), store
}

func TestSendMessageRejectsInvalidInput(t *testing.T) {
	service, _ := newTestChatService()
	ctx := context.Background()

	cases := []struct {
		name     string
		sender   int64
		receiver int64
		content  string
	}{
		{"empty content", 1, 2, ""},
		{"blank content", 1, 2, " \n\t"},
		{"missing sender", 0, 2, "hi"},
		{"missing receiver", 1, 0, "hi"},
		{"self addressed", 1, 1, "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.SendMessage(ctx, tc.sender, tc.receiver, tc.content)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSendMessageTrimsAndPersists(t *testing.T) {
	req := require.New(t)
	service, store := newTestChatService()

	message, err := service.SendMessage(context.Background(), 1, 2, "  hello  ")
	req.NoError(err)
	req.Equal("hello", message.Content)
	req.False(message.Read)
	req.NotZero(message.ID)

	thread, err := store.GetConversation(context.Background(), 1, 2)
	req.NoError(err)
	req.Equal([]models.Message{*message}, thread)
}

func TestConversationKeepsInsertionOrderAcrossSenders(t *testing.T) {
	req := require.New(t)
	service, _ := newTestChatService()
	ctx := context.Background()

	var sent []int64
	for i, content := range []string{"one", "two", "three", "four", "five"} {
		from, to := int64(1), int64(2)
		if i%2 == 1 {
			from, to = to, from
		}
		message, err := service.SendMessage(ctx, from, to, content)
		req.NoError(err)
		sent = append(sent, message.ID)
	}

	thread, err := service.GetConversation(ctx, 2, 1)
	req.NoError(err)
	req.Len(thread, len(sent))
	for i := range thread {
		req.Equal(sent[i], thread[i].ID)
		if i > 0 {
			req.False(thread[i].CreatedAt.Before(thread[i-1].CreatedAt))
		}
	}
}

func TestOfflineReceiverReadsMessageOnFetch(t *testing.T) {
	req := require.New(t)
	service, store := newTestChatService()
	ctx := context.Background()

	_, err := service.SendMessage(ctx, 1, 2, "hi")
	req.NoError(err)

	thread, err := service.GetConversation(ctx, 2, 1)
	req.NoError(err)
	req.Len(thread, 1)
	req.Equal("hi", thread[0].Content)
	req.False(thread[0].Read, "the fetch that reads a message still reports it as new")

	stored, err := store.GetConversation(ctx, 1, 2)
	req.NoError(err)
	req.True(stored[0].Read)

	again, err := service.GetConversation(ctx, 2, 1)
	req.NoError(err)
	req.True(again[0].Read)
}

func TestFetchingOwnSideDoesNotMarkOutgoingRead(t *testing.T) {
	req := require.New(t)
	service, _ := newTestChatService()
	ctx := context.Background()

	_, err := service.SendMessage(ctx, 1, 2, "are you there?")
	req.NoError(err)

	thread, err := service.GetConversation(ctx, 1, 2)
	req.NoError(err)
	req.False(thread[0].Read)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	req := require.New(t)
	service, store := newTestChatService()
	ctx := context.Background()

	for _, content := range []string{"a", "b"} {
		_, err := service.SendMessage(ctx, 1, 2, content)
		req.NoError(err)
	}
	_, err := service.SendMessage(ctx, 2, 1, "c")
	req.NoError(err)

	req.NoError(service.MarkRead(ctx, 1, 2))
	once, err := store.GetConversation(ctx, 1, 2)
	req.NoError(err)

	req.NoError(service.MarkRead(ctx, 1, 2))
	twice, err := store.GetConversation(ctx, 1, 2)
	req.NoError(err)

	req.Equal(once, twice)
	req.True(twice[0].Read)
	req.True(twice[1].Read)
	req.False(twice[2].Read)
}

func TestListConversationsOneEntryPerCounterpart(t *testing.T) {
	req := require.New(t)
	service, _ := newTestChatService()
	ctx := context.Background()

	_, err := service.SendMessage(ctx, 1, 2, "hi bob")
	req.NoError(err)
	_, err = service.SendMessage(ctx, 3, 1, "hi alice")
	req.NoError(err)
	last, err := service.SendMessage(ctx, 2, 1, "hey alice")
	req.NoError(err)
	_, err = service.SendMessage(ctx, 1, 9, "hello stranger")
	req.NoError(err)

	summaries, err := service.ListConversations(ctx, 1)
	req.NoError(err)
	req.Len(summaries, 3)

	byUser := make(map[int64]models.ConversationSummary)
	for _, summary := range summaries {
		byUser[summary.UserID] = summary
	}
	req.Equal("bob", byUser[2].Username)
	req.Equal(*last, byUser[2].LastMessage)
	req.Equal(1, byUser[2].UnreadCount)
	req.Equal("carol", byUser[3].Username)
	req.Equal("Unknown User", byUser[9].Username)
	req.Equal(0, byUser[9].UnreadCount)

	for _, summary := range summaries {
		thread, err := service.GetConversation(ctx, 1, summary.UserID)
		req.NoError(err)
		req.Equal(thread[len(thread)-1].ID, summary.LastMessage.ID)
	}
}

func TestListConversationsPropagatesIdentityFailures(t *testing.T) {
	store := repository.NewMemoryMessageRepository()
	service := NewChatService(store, failingUserReader{})

	_, err := service.SendMessage(context.Background(), 1, 2, "hi")
	require.NoError(t, err)

	_, err = service.ListConversations(context.Background(), 1)
	require.Error(t, err)
}

func TestFormatChatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "2026-03-01T09:30:00Z", FormatChatTimestamp(ts))
}
