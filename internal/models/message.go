package models

import "time"

// Message represents a chat message.
type Message struct {
	ID         int       `db:"id" json:"id"`
	ChatID     int       `db:"chat_id" json:"chat_id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name,omitempty"`
	Text       string    `db:"text" json:"text"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	IsRead     bool      `db:"is_read" json:"is_read"`
}
