package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"realtime-chat/internal/models"
)

var (
	ErrChatNotFound        = errors.New("chat not found")
	ErrTooFewParticipants  = errors.New("chat must have at least 2 participants")
	ErrGroupCreatorMissing = errors.New("group chat must have a creator")
)

// ChatRepository abstracts chat persistence and answers membership questions.
type ChatRepository interface {
	CreateChat(ctx context.Context, name string, chatType models.ChatType, participantIDs []int, creatorID *int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int, withParticipants bool) (models.Chat, error)
	ListChats(ctx context.Context, userID int, limit, offset int) ([]models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat stores a chat and its participants in one transaction. Group
// chats always include their creator.
func (r *ChatRepo) CreateChat(ctx context.Context, name string, chatType models.ChatType, participantIDs []int, creatorID *int) (models.Chat, error) {
	if len(participantIDs) < 2 {
		return models.Chat{}, ErrTooFewParticipants
	}
	if chatType == models.ChatTypeGroup && creatorID == nil {
		return models.Chat{}, ErrGroupCreatorMissing
	}

	ids := lo.Uniq(participantIDs)
	if chatType == models.ChatTypeGroup && !lo.Contains(ids, *creatorID) {
		ids = append(ids, *creatorID)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	if err := tx.QueryRowxContext(ctx, `INSERT INTO chats (name, type, creator_id) VALUES ($1, $2, $3) RETURNING id, name, type, creator_id, created_at`, name, chatType, creatorID).
		StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	for _, userID := range ids {
		var p models.Participant
		if err := tx.QueryRowxContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2) RETURNING id, chat_id, user_id, joined_at`, chat.ID, userID).
			StructScan(&p); err != nil {
			return models.Chat{}, err
		}
		chat.Participants = append(chat.Participants, p)
	}

	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id, optionally with its participants.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int, withParticipants bool) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, name, type, creator_id, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil || !withParticipants {
		return chat, err
	}

	err = r.db.SelectContext(ctx, &chat.Participants, `SELECT id, chat_id, user_id, joined_at FROM chat_participants WHERE chat_id=$1 ORDER BY id`, chatID)
	return chat, err
}

// ListChats returns the chats the user participates in, newest first.
func (r *ChatRepo) ListChats(ctx context.Context, userID int, limit, offset int) ([]models.Chat, error) {
	query := `SELECT c.id, c.name, c.type, c.creator_id, c.created_at FROM chats c
        JOIN chat_participants cp ON cp.chat_id = c.id
        WHERE cp.user_id=$1
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT $2 OFFSET $3`
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID, limit, offset); err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return chats, nil
	}

	ids := lo.Map(chats, func(c models.Chat, _ int) int { return c.ID })
	q, args, err := sqlx.In(`SELECT id, chat_id, user_id, joined_at FROM chat_participants WHERE chat_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}

	byChat := lo.GroupBy(participants, func(p models.Participant) int { return p.ChatID })
	for i := range chats {
		chats[i].Participants = byChat[chats[i].ID]
	}
	return chats, nil
}
