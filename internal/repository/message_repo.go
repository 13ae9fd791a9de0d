package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tageampi/vintohub/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, content, read, created_at`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, input models.NewMessage) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING ` + messageColumns

	message, err := scanMessage(r.db.QueryRow(ctx, query, input.SenderID, input.ReceiverID, input.Content))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

func (r *MessageRepository) GetConversation(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, userA, userB)
}

func (r *MessageRepository) ListByParticipant(ctx context.Context, userID int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, userID)
}

func (r *MessageRepository) MarkRead(ctx context.Context, senderID, receiverID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read = TRUE
		WHERE sender_id = $1
		  AND receiver_id = $2
		  AND read = FALSE
	`, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	if err := row.Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.Read,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	message.CreatedAt = message.CreatedAt.UTC()
	return &message, nil
}
