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
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// ConversationHandler manages conversation and membership endpoints.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	friendshipRepo   repositories.FriendshipRepository
	hub              *ws.Hub
	audit            *telemetry.AuditEmitter
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, friendshipRepo repositories.FriendshipRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		friendshipRepo:   friendshipRepo,
		hub:              hub,
		audit:            audit,
	}
}

// CreateConversation handles POST /conversations for both kinds. Personal
// creation is idempotent per pair: an existing conversation is returned as-is.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Kind      string `json:"kind" binding:"required"`
		FriendID  int    `json:"friend_id"`
		Name      string `json:"name"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Kind {
	case models.ConversationPersonal:
		h.createPersonal(c, userID, req.FriendID)
	case models.ConversationGroup:
		h.createGroup(c, userID, req.Name, req.MemberIDs)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation kind"})
	}
}

func (h *ConversationHandler) createPersonal(c *gin.Context, userID, friendID int) {
	if friendID == 0 || friendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	friends, err := h.friendshipRepo.AreFriends(c.Request.Context(), userID, friendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusBadRequest, gin.H{"error": "users are not friends"})
		return
	}

	conv, err := h.conversationRepo.CreateOrGetPersonal(c.Request.Context(), userID, friendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) createGroup(c *gin.Context, userID int, name string, memberIDs []int) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > models.MaxGroupNameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group name"})
		return
	}

	members := dedupeMembers(userID, memberIDs)
	if len(members) < models.MinGroupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group needs at least one other member"})
		return
	}
	if len(members) > models.MaxGroupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group size exceeds limit"})
		return
	}

	// Every member must individually hold an accepted friendship with the creator.
	for _, memberID := range members {
		if memberID == userID {
			continue
		}
		friends, err := h.friendshipRepo.AreFriends(c.Request.Context(), userID, memberID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
			return
		}
		if !friends {
			c.JSON(http.StatusBadRequest, gin.H{"error": "all members must be friends of the creator"})
			return
		}
	}

	conv, err := h.conversationRepo.CreateGroup(c.Request.Context(), userID, name, members)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, conv)
}

// ListConversations returns the caller's conversations with unread counts.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	convs, err := h.conversationRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		unread, err := h.messageRepo.UnreadCount(c.Request.Context(), conv.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread messages"})
			return
		}
		summaries = append(summaries, models.ConversationSummary{Conversation: conv, UnreadCount: unread})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Rename handles PATCH /conversations/:id. Group admin only.
func (h *ConversationHandler) Rename(c *gin.Context) {
	conv, ok := h.loadForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if !conv.IsAdmin(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > models.MaxGroupNameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group name"})
		return
	}

	if err := h.conversationRepo.Rename(c.Request.Context(), conv.ID, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rename group"})
		return
	}

	h.emitAudit(c, "INFO", "Group renamed")
	c.Status(http.StatusNoContent)
}

// AddMember handles POST /conversations/:id/members. Admin only; the new member
// must hold an accepted friendship with the admin; the group may not exceed its
// size limit.
func (h *ConversationHandler) AddMember(c *gin.Context) {
	conv, ok := h.loadForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if !conv.IsAdmin(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if conv.HasParticipant(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already a member"})
		return
	}
	if len(conv.Participants)+1 > models.MaxGroupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group size exceeds limit"})
		return
	}

	friends, err := h.friendshipRepo.AreFriends(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member must be a friend of the admin"})
		return
	}

	if err := h.conversationRepo.AddMember(c.Request.Context(), conv.ID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.emitAudit(c, "INFO", "Group member added")
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /conversations/:id/members/:user_id. Admin only;
// the admin cannot remove themselves here and the group cannot shrink below its
// minimum size.
func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	conv, ok := h.loadForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if !conv.IsAdmin(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	memberID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if memberID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin cannot remove self"})
		return
	}
	if !conv.HasParticipant(memberID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a member"})
		return
	}
	if len(conv.Participants)-1 < models.MinGroupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group cannot shrink below minimum size"})
		return
	}

	if err := h.conversationRepo.RemoveMember(c.Request.Context(), conv.ID, memberID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.emitAudit(c, "INFO", "Group member removed")
	c.Status(http.StatusNoContent)
}

// Leave handles POST /conversations/:id/leave. Either party leaving a personal
// conversation deletes it. An admin leaving a group deletes it for everyone,
// messages included. A non-admin leaving a group at minimum size also deletes
// the conversation rather than leaving a one-member group behind.
func (h *ConversationHandler) Leave(c *gin.Context) {
	conv, ok := h.loadForParticipant(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	destructive := conv.Kind == models.ConversationPersonal ||
		conv.IsAdmin(userID) ||
		len(conv.Participants)-1 < models.MinGroupSize

	if destructive {
		if err := h.conversationRepo.Delete(c.Request.Context(), conv.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete conversation"})
			return
		}
		h.emitAudit(c, "INFO", "Conversation deleted")
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}

	if err := h.conversationRepo.RemoveMember(c.Request.Context(), conv.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave conversation"})
		return
	}
	h.emitAudit(c, "INFO", "Group member left")
	c.JSON(http.StatusOK, gin.H{"deleted": false})
}

// loadForParticipant fetches the conversation and enforces membership. Absent
// and not-a-participant both answer 404 so existence never leaks.
func (h *ConversationHandler) loadForParticipant(c *gin.Context) (models.Conversation, bool) {
	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return models.Conversation{}, false
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return models.Conversation{}, false
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return models.Conversation{}, false
	}
	return conv, true
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func dedupeMembers(ownerID int, memberIDs []int) []int {
	seen := map[int]struct{}{ownerID: {}}
	members := []int{ownerID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}
