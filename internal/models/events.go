package models

// Gateway event names. Client frames carry one of the client events; server frames
// carry one of the server events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessagesRead      = "messages:read"

	EventMessageReceive = "message:receive"
	EventTypingUpdate   = "typing:update"
	EventReadUpdate     = "messages:read:update"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventError          = "error"
)

// ClientEvent is the envelope for every inbound gateway frame.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id"`
	Content        string `json:"content,omitempty"`
}

// MessageReceiveEvent fans a persisted message out to a conversation room,
// sender included.
type MessageReceiveEvent struct {
	Type           string      `json:"type"`
	ConversationID int         `json:"conversation_id"`
	Message        MessageView `json:"message"`
}

// TypingUpdateEvent relays a typing indicator to a room, sender excluded.
type TypingUpdateEvent struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id"`
	UserID         int    `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ReadUpdateEvent notifies a room that a user caught up on a conversation.
type ReadUpdateEvent struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id"`
	UserID         int    `json:"user_id"`
}

// PresenceEvent is broadcast globally on connect and disconnect.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID int    `json:"user_id"`
}

// ErrorEvent is delivered privately to the connection whose operation failed.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
