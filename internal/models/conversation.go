package models

import "time"

// Conversation kinds.
const (
	ConversationPersonal = "personal"
	ConversationGroup    = "group"
)

// Limits enforced before any store write.
const (
	MaxGroupSize       = 20
	MinGroupSize       = 2
	MaxGroupNameLength = 50
	MaxMessageLength   = 2000
	PreviewLength      = 100
)

// Conversation is a personal (exactly two members) or group (2..20 members) thread.
// AdminID is set for groups only. UserLow/UserHigh hold the sorted participant pair
// for personal conversations and back the per-pair uniqueness constraint.
type Conversation struct {
	ID                  int        `db:"id" json:"id"`
	Kind                string     `db:"kind" json:"kind"`
	Name                *string    `db:"name" json:"name,omitempty"`
	AdminID             *int       `db:"admin_id" json:"admin_id,omitempty"`
	UserLow             *int       `db:"user_low" json:"-"`
	UserHigh            *int       `db:"user_high" json:"-"`
	LastMessagePreview  *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageSenderID *int       `db:"last_message_sender_id" json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`

	Participants []int `db:"-" json:"participants,omitempty"`
}

// IsAdmin reports whether the user administers a group conversation.
func (c Conversation) IsAdmin(userID int) bool {
	return c.Kind == ConversationGroup && c.AdminID != nil && *c.AdminID == userID
}

// HasParticipant reports membership against the loaded participant set.
func (c Conversation) HasParticipant(userID int) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the listing view with the on-demand unread scan result.
type ConversationSummary struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}
