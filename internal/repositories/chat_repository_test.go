package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"realtime-chat/internal/models"
)

func TestCreateChatRejectsBeforeTouchingDB(t *testing.T) {
	repo := NewChatRepo(nil)
	ctx := context.Background()

	_, err := repo.CreateChat(ctx, "solo", models.ChatTypePersonal, []int{1}, nil)
	assert.ErrorIs(t, err, ErrTooFewParticipants)

	_, err = repo.CreateChat(ctx, "group", models.ChatTypeGroup, []int{1, 2}, nil)
	assert.ErrorIs(t, err, ErrGroupCreatorMissing)
}
