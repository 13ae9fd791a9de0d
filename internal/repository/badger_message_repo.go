package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tageampi/vintohub/internal/models"
)

const (
	messageKeyPrefix     = "msg:"
	pairKeyPrefix        = "pair:"
	participantKeyPrefix = "part:"
	messageSequenceKey   = "seq:message"
	sequenceBandwidth    = 100
	markReadAttempts     = 5
)

// BadgerMessageRepository stores messages in an embedded badger database.
//
// Each message is written once under "msg:{id}" and indexed twice:
//   - "pair:{low}:{high}:{created_at}:{id}" for conversation reads,
//   - "part:{user}:{created_at}:{id}" for every participant.
//
// Ids and nanosecond timestamps are zero padded so lexicographic key order
// is conversation order.
type BadgerMessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu     sync.Mutex
	seq    *badger.Sequence
	lastAt time.Time
	now    func() time.Time
}

type diskMessage struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  int64  `json:"created_at"`
}

func NewBadgerMessageRepository(db *badger.DB, log *slog.Logger) *BadgerMessageRepository {
	return &BadgerMessageRepository{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *BadgerMessageRepository) Create(_ context.Context, input models.NewMessage) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seq == nil {
		seq, err := r.db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
		if err != nil {
			return nil, fmt.Errorf("open message sequence: %w", err)
		}
		r.seq = seq
	}

	next, err := r.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("next message id: %w", err)
	}

	createdAt := r.now()
	if createdAt.Before(r.lastAt) {
		createdAt = r.lastAt
	}

	message := models.Message{
		ID:         int64(next) + 1,
		SenderID:   input.SenderID,
		ReceiverID: input.ReceiverID,
		Content:    input.Content,
		CreatedAt:  createdAt,
	}

	payload, err := json.Marshal(fromMessage(message))
	if err != nil {
		return nil, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), payload); err != nil {
			return err
		}
		if err := txn.Set(pairIndexKey(message), nil); err != nil {
			return err
		}
		if err := txn.Set(participantIndexKey(message.SenderID, message), nil); err != nil {
			return err
		}
		return txn.Set(participantIndexKey(message.ReceiverID, message), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	r.lastAt = createdAt
	r.log.Debug("Message stored", "id", message.ID, "sender_id", message.SenderID, "receiver_id", message.ReceiverID)
	return &message, nil
}

func (r *BadgerMessageRepository) GetConversation(_ context.Context, userA, userB int64) ([]models.Message, error) {
	return r.scan(pairPrefix(userA, userB))
}

func (r *BadgerMessageRepository) ListByParticipant(_ context.Context, userID int64) ([]models.Message, error) {
	return r.scan(participantPrefix(userID))
}

// MarkRead is idempotent, so a transaction that loses a write conflict to a
// concurrent MarkRead on the same pair is simply run again.
func (r *BadgerMessageRepository) MarkRead(_ context.Context, senderID, receiverID int64) error {
	var (
		marked int
		err    error
	)
	for attempt := 1; attempt <= markReadAttempts; attempt++ {
		marked, err = r.markRead(senderID, receiverID)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		r.log.Debug("Retrying mark read after conflict", "sender_id", senderID, "receiver_id", receiverID, "attempt", attempt)
	}
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	if marked > 0 {
		r.log.Debug("Messages marked read", "sender_id", senderID, "receiver_id", receiverID, "count", marked)
	}
	return nil
}

func (r *BadgerMessageRepository) markRead(senderID, receiverID int64) (int, error) {
	marked := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		ids, err := indexedIDs(txn, pairPrefix(senderID, receiverID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message.SenderID != senderID || message.ReceiverID != receiverID || message.Read {
				continue
			}
			message.Read = true
			payload, err := json.Marshal(fromMessage(message))
			if err != nil {
				return err
			}
			if err := txn.Set(messageKey(id), payload); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// All returns every stored message in id order.
func (r *BadgerMessageRepository) All(_ context.Context) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messageKeyPrefix)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored diskMessage
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &stored)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, toMessage(stored))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Close releases the id lease. The badger handle itself belongs to the caller.
func (r *BadgerMessageRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq == nil {
		return nil
	}
	err := r.seq.Release()
	r.seq = nil
	return err
}

func (r *BadgerMessageRepository) scan(prefix []byte) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		ids, err := indexedIDs(txn, prefix)
		if err != nil {
			return err
		}
		for _, id := range ids {
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func indexedIDs(txn *badger.Txn, prefix []byte) ([]int64, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var ids []int64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := string(it.Item().Key())
		id, err := strconv.ParseInt(key[strings.LastIndexByte(key, ':')+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index key %q: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getMessage(txn *badger.Txn, id int64) (models.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err != nil {
		return models.Message{}, fmt.Errorf("load message %d: %w", id, err)
	}
	var stored diskMessage
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &stored)
	}); err != nil {
		return models.Message{}, err
	}
	return toMessage(stored), nil
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messageKeyPrefix, id))
}

func pairPrefix(userA, userB int64) []byte {
	low, high := userA, userB
	if low > high {
		low, high = high, low
	}
	return []byte(fmt.Sprintf("%s%020d:%020d:", pairKeyPrefix, low, high))
}

func pairIndexKey(message models.Message) []byte {
	prefix := pairPrefix(message.SenderID, message.ReceiverID)
	return append(prefix, []byte(fmt.Sprintf("%019d:%020d", message.CreatedAt.UnixNano(), message.ID))...)
}

func participantPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", participantKeyPrefix, userID))
}

func participantIndexKey(userID int64, message models.Message) []byte {
	prefix := participantPrefix(userID)
	return append(prefix, []byte(fmt.Sprintf("%019d:%020d", message.CreatedAt.UnixNano(), message.ID))...)
}

func fromMessage(message models.Message) diskMessage {
	return diskMessage{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Read:       message.Read,
		CreatedAt:  message.CreatedAt.UnixNano(),
	}
}

func toMessage(stored diskMessage) models.Message {
	return models.Message{
		ID:         stored.ID,
		SenderID:   stored.SenderID,
		ReceiverID: stored.ReceiverID,
		Content:    stored.Content,
		Read:       stored.Read,
		CreatedAt:  time.Unix(0, stored.CreatedAt).UTC(),
	}
}
