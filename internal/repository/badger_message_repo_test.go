package repository

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"github.com/tageampi/vintohub/internal/models"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestBadgerRepository(t *testing.T, db *badger.DB) *BadgerMessageRepository {
	t.Helper()
	repo := NewBadgerMessageRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBadgerMessageRepository(t *testing.T) {
	repo := newTestBadgerRepository(t, openTestBadger(t))
	exerciseMessageStore(t, repo, 1, 2, 3)
}

func TestBadgerMessageRepositoryOrdersAcrossWideIDs(t *testing.T) {
	req := require.New(t)
	repo := newTestBadgerRepository(t, openTestBadger(t))
	clock := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	// Same timestamp for every message: the id suffix decides.
	for i := 0; i < 12; i++ {
		_, err := repo.Create(context.Background(), models.NewMessage{SenderID: 9, ReceiverID: 10, Content: "tick"})
		req.NoError(err)
	}

	thread, err := repo.GetConversation(context.Background(), 10, 9)
	req.NoError(err)
	req.Len(thread, 12)
	for i := 1; i < len(thread); i++ {
		req.Less(thread[i-1].ID, thread[i].ID)
	}
}

func TestBadgerMessageRepositorySurvivesReopenOfSequence(t *testing.T) {
	req := require.New(t)
	db := openTestBadger(t)

	first := NewBadgerMessageRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a, err := first.Create(context.Background(), models.NewMessage{SenderID: 1, ReceiverID: 2, Content: "a"})
	req.NoError(err)
	req.NoError(first.Close())

	second := newTestBadgerRepository(t, db)
	b, err := second.Create(context.Background(), models.NewMessage{SenderID: 2, ReceiverID: 1, Content: "b"})
	req.NoError(err)

	req.Greater(b.ID, a.ID)

	thread, err := second.GetConversation(context.Background(), 1, 2)
	req.NoError(err)
	req.Len(thread, 2)
	req.Equal("a", thread[0].Content)
}

func TestBadgerMessageRepositoryAll(t *testing.T) {
	req := require.New(t)
	repo := newTestBadgerRepository(t, openTestBadger(t))

	empty, err := repo.All(context.Background())
	req.NoError(err)
	req.Empty(empty)

	for _, pair := range [][2]int64{{1, 2}, {3, 4}, {2, 1}} {
		_, err := repo.Create(context.Background(), models.NewMessage{SenderID: pair[0], ReceiverID: pair[1], Content: "x"})
		req.NoError(err)
	}

	all, err := repo.All(context.Background())
	req.NoError(err)
	req.Len(all, 3)
	req.Equal(int64(3), all[1].SenderID)
	req.Less(all[0].ID, all[2].ID)
}

func TestBadgerMessageRepositoryConcurrentMarkRead(t *testing.T) {
	req := require.New(t)
	repo := newTestBadgerRepository(t, openTestBadger(t))
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		for i := 0; i < 20; i++ {
			_, err := repo.Create(ctx, models.NewMessage{SenderID: 1, ReceiverID: 2, Content: "unread"})
			req.NoError(err)
		}

		start := make(chan struct{})
		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for device := 0; device < 2; device++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs <- repo.MarkRead(ctx, 1, 2)
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			req.NoError(err, "round %d", round)
		}
	}

	thread, err := repo.GetConversation(ctx, 2, 1)
	req.NoError(err)
	req.Len(thread, 1000)
	for _, message := range thread {
		req.True(message.Read)
	}
}
