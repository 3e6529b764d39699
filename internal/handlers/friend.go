package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// FriendHandler manages the friend request lifecycle.
type FriendHandler struct {
	friendshipRepo repositories.FriendshipRepository
	userRepo       repositories.UserRepository
}

// NewFriendHandler constructs a FriendHandler.
func NewFriendHandler(friendshipRepo repositories.FriendshipRepository, userRepo repositories.UserRepository) *FriendHandler {
	return &FriendHandler{friendshipRepo: friendshipRepo, userRepo: userRepo}
}

// SendRequest handles POST /friends/requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot befriend yourself"})
		return
	}

	if _, err := h.userRepo.GetUser(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	fr, err := h.friendshipRepo.CreateRequest(c.Request.Context(), userID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrFriendshipExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "friendship already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create request"})
		return
	}

	c.JSON(http.StatusCreated, fr)
}

// AcceptRequest handles POST /friends/requests/:id/accept. Recipient only.
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	h.resolveRequest(c, models.FriendshipAccepted)
}

// DeclineRequest handles POST /friends/requests/:id/decline. Recipient only.
func (h *FriendHandler) DeclineRequest(c *gin.Context) {
	h.resolveRequest(c, models.FriendshipDeclined)
}

func (h *FriendHandler) resolveRequest(c *gin.Context, status string) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	userID := c.GetInt("userID")

	fr, err := h.friendshipRepo.GetByID(c.Request.Context(), id)
	if err != nil || fr.RecipientID != userID || fr.Status != models.FriendshipPending {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	if err := h.friendshipRepo.UpdateStatus(c.Request.Context(), id, status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update request"})
		return
	}

	c.Status(http.StatusNoContent)
}

// CancelRequest handles DELETE /friends/requests/:id. Requester only, while pending.
func (h *FriendHandler) CancelRequest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	userID := c.GetInt("userID")

	fr, err := h.friendshipRepo.GetByID(c.Request.Context(), id)
	if err != nil || fr.RequesterID != userID || fr.Status != models.FriendshipPending {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}

	if err := h.friendshipRepo.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel request"})
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveFriend handles DELETE /friends/:user_id. Removes an accepted friendship.
func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	fr, err := h.friendshipRepo.GetBetween(c.Request.Context(), userID, otherID)
	if err != nil || fr.Status != models.FriendshipAccepted {
		c.JSON(http.StatusNotFound, gin.H{"error": "friendship not found"})
		return
	}

	if err := h.friendshipRepo.Delete(c.Request.Context(), fr.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove friend"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListFriends handles GET /friends: accepted friendships with the other party resolved.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID := c.GetInt("userID")

	friendships, err := h.friendshipRepo.ListForUser(c.Request.Context(), userID, models.FriendshipAccepted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}

	friendIDs := make([]int, 0, len(friendships))
	for _, fr := range friendships {
		otherID := fr.RequesterID
		if otherID == userID {
			otherID = fr.RecipientID
		}
		friendIDs = append(friendIDs, otherID)
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), friendIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"friends": users})
}

// ListRequests handles GET /friends/requests: pending requests involving the caller.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	userID := c.GetInt("userID")

	requests, err := h.friendshipRepo.ListForUser(c.Request.Context(), userID, models.FriendshipPending)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
