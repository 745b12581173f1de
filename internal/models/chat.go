package models

import "time"

// ChatType distinguishes one-to-one chats from group chats.
type ChatType string

const (
	ChatTypePersonal ChatType = "personal"
	ChatTypeGroup    ChatType = "group"
)

// Valid reports whether t is a known chat type.
func (t ChatType) Valid() bool {
	return t == ChatTypePersonal || t == ChatTypeGroup
}

// Chat is a conversation between two or more participants.
type Chat struct {
	ID           int           `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	Type         ChatType      `db:"type" json:"type"`
	CreatorID    *int          `db:"creator_id" json:"creator_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	Participants []Participant `db:"-" json:"-"`
}

// Participant links a user to a chat.
type Participant struct {
	ID       int       `db:"id" json:"id"`
	ChatID   int       `db:"chat_id" json:"chat_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// HasParticipant reports whether userID is among the loaded participants.
func (c Chat) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the user ids of the loaded participants.
func (c Chat) ParticipantIDs() []int {
	ids := make([]int, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}
