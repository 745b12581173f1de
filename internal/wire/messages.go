// Package wire defines the JSON frames exchanged over chat sockets and the
// pub/sub bus. Frames are discriminated by their "type" field.
package wire

import (
	"encoding/json"
	"time"

	"realtime-chat/internal/models"
)

// Type is the discriminant carried by every frame.
type Type string

const (
	TypeMessage    Type = "message"
	TypeReadStatus Type = "read_status"
)

// MessageOut is a chat message delivered to clients.
type MessageOut struct {
	Type      Type      `json:"type"`
	ID        int       `json:"id"`
	SenderID  int       `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// NewMessageOut builds the outbound frame for a persisted message.
func NewMessageOut(msg models.Message) MessageOut {
	return MessageOut{
		Type:      TypeMessage,
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Text,
		Timestamp: msg.Timestamp,
		IsRead:    msg.IsRead,
	}
}

// ReadStatusOut tells clients that a reader has seen a message.
type ReadStatusOut struct {
	Type      Type      `json:"type"`
	MessageID int       `json:"message_id"`
	ReaderID  int       `json:"reader_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReadStatusOut builds a read receipt stamped with at.
func NewReadStatusOut(messageID, readerID int, at time.Time) ReadStatusOut {
	return ReadStatusOut{
		Type:      TypeReadStatus,
		MessageID: messageID,
		ReaderID:  readerID,
		Timestamp: at,
	}
}

// Encode serializes an outbound frame.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
