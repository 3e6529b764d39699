package models

import "time"

// Message is immutable after creation except for ReadBy growth. ReadBy always
// contains the sender from the moment the row exists.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	ReadBy []int `db:"-" json:"read_by"`
}

// MessageView is a message with the sender resolved for fan-out and listings.
type MessageView struct {
	Message
	SenderUsername string `json:"sender_username,omitempty"`
	SenderEmail    string `json:"sender_email,omitempty"`
}
