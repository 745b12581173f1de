package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID int, senderID int, text string) (models.Message, error)
	GetHistory(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int, chatID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message; the database assigns id and timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID int, senderID int, text string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `WITH m AS (
            INSERT INTO messages (chat_id, sender_id, text) VALUES ($1, $2, $3)
            RETURNING id, chat_id, sender_id, text, timestamp, is_read
        )
        SELECT m.id, m.chat_id, m.sender_id, u.name AS sender_name, m.text, m.timestamp, m.is_read
        FROM m JOIN users u ON u.id = m.sender_id`, chatID, senderID, text)
	return msg, err
}

// GetHistory returns a page of chat messages in ascending timestamp order
// with the sender name resolved.
func (r *MessageRepo) GetHistory(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error) {
	query := `SELECT m.id, m.chat_id, m.sender_id, u.name AS sender_name, m.text, m.timestamp, m.is_read
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.chat_id=$1
        ORDER BY m.timestamp ASC, m.id ASC
        LIMIT $2 OFFSET $3`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, chatID, limit, offset)
	return msgs, err
}

// MarkRead flags a message of the given chat as read. Marking an already
// read message succeeds without changing it.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int, chatID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `WITH m AS (
            UPDATE messages SET is_read = TRUE WHERE id=$1 AND chat_id=$2
            RETURNING id, chat_id, sender_id, text, timestamp, is_read
        )
        SELECT m.id, m.chat_id, m.sender_id, u.name AS sender_name, m.text, m.timestamp, m.is_read
        FROM m JOIN users u ON u.id = m.sender_id`, messageID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
