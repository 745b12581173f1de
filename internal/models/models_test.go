package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatTypeValid(t *testing.T) {
	assert.True(t, ChatTypePersonal.Valid())
	assert.True(t, ChatTypeGroup.Valid())
	assert.False(t, ChatType("channel").Valid())
}

func TestChatParticipants(t *testing.T) {
	chat := Chat{ID: 7, Participants: []Participant{{ChatID: 7, UserID: 1}, {ChatID: 7, UserID: 2}}}

	assert.True(t, chat.HasParticipant(2))
	assert.False(t, chat.HasParticipant(3))
	assert.Equal(t, []int{1, 2}, chat.ParticipantIDs())
	assert.False(t, Chat{}.HasParticipant(1))
	assert.Empty(t, Chat{}.ParticipantIDs())
}
