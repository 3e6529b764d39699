package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/ws"
)

// MessageHandler is the REST mirror of the gateway's send/list/read operations,
// for clients without an active connection. Side effects still fan out to any
// connected room members.
type MessageHandler struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	userRepo         repositories.UserRepository
	hub              *ws.Hub
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		hub:              hub,
	}
}

// ListMessages returns one page of a conversation's messages with senders resolved.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, userID, ok := h.authorizeConversation(c)
	if !ok {
		return
	}

	page, limit := pageParams(c)
	msgs, err := h.messageRepo.ListPage(c.Request.Context(), conversationID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	views, err := h.resolveSenders(c, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	unread, err := h.messageRepo.UnreadCount(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":     views,
		"unread_count": unread,
		"page":         page,
		"limit":        limit,
	})
}

// PostMessage stores a message and broadcasts it to the conversation room,
// sender's connection included.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	userID := c.GetInt("userID")

	conv, err := h.conversationRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" || utf8.RuneCountInString(content) > models.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message content"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), conversationID, userID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.conversationRepo.UpdateLastMessage(c.Request.Context(), conversationID, ws.Preview(content), userID, msg.CreatedAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update conversation"})
		return
	}

	view := models.MessageView{Message: msg}
	if sender, err := h.userRepo.GetUser(c.Request.Context(), userID); err == nil {
		view.SenderUsername = sender.Username
		view.SenderEmail = sender.Email
	}
	h.hub.Broadcast(conversationID, models.MessageReceiveEvent{
		Type:           models.EventMessageReceive,
		ConversationID: conversationID,
		Message:        view,
	}, nil)

	c.JSON(http.StatusCreated, view)
}

// MarkRead adds the caller to the read-by set of every message in the
// conversation. Idempotent.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID, userID, ok := h.authorizeConversation(c)
	if !ok {
		return
	}

	updated, err := h.messageRepo.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	h.hub.Broadcast(conversationID, models.ReadUpdateEvent{
		Type:           models.EventReadUpdate,
		ConversationID: conversationID,
		UserID:         userID,
	}, nil)

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *MessageHandler) authorizeConversation(c *gin.Context) (int, int, bool) {
	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, 0, false
	}

	userID := c.GetInt("userID")
	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return 0, 0, false
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return 0, 0, false
	}
	return conversationID, userID, true
}

func (h *MessageHandler) resolveSenders(c *gin.Context, msgs []models.Message) ([]models.MessageView, error) {
	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		return nil, err
	}
	byID := map[int]models.User{}
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := models.MessageView{Message: m}
		if sender, ok := byID[m.SenderID]; ok {
			view.SenderUsername = sender.Username
			view.SenderEmail = sender.Email
		}
		views = append(views, view)
	}
	return views, nil
}
