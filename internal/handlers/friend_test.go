package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type friendFixture struct {
	router      *gin.Engine
	friendships *mocks.FriendshipRepositoryMock
	users       *mocks.UserRepositoryMock
}

func newFriendRouter() friendFixture {
	gin.SetMode(gin.TestMode)

	friendships := new(mocks.FriendshipRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewFriendHandler(friendships, users)

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("userID", 1) })
	router.POST("/friends/requests", handler.SendRequest)
	router.GET("/friends/requests", handler.ListRequests)
	router.POST("/friends/requests/:id/accept", handler.AcceptRequest)
	router.POST("/friends/requests/:id/decline", handler.DeclineRequest)
	router.DELETE("/friends/requests/:id", handler.CancelRequest)
	router.DELETE("/friends/:user_id", handler.RemoveFriend)
	router.GET("/friends", handler.ListFriends)

	return friendFixture{router: router, friendships: friendships, users: users}
}

func TestSendFriendRequest(t *testing.T) {
	f := newFriendRouter()

	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bo"}, nil).Once()
	f.friendships.On("CreateRequest", mock.Anything, 1, 2).Return(models.Friendship{ID: 5, RequesterID: 1, RecipientID: 2, Status: models.FriendshipPending}, nil).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests", gin.H{"user_id": 2})

	require.Equal(t, http.StatusCreated, rec.Code)
	var fr models.Friendship
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fr))
	assert.Equal(t, models.FriendshipPending, fr.Status)
}

func TestSendFriendRequestToSelf(t *testing.T) {
	f := newFriendRouter()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests", gin.H{"user_id": 1})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.friendships.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFriendRequestUnknownUser(t *testing.T) {
	f := newFriendRouter()

	f.users.On("GetUser", mock.Anything, 99).Return(models.User{}, repositories.ErrUserNotFound).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests", gin.H{"user_id": 99})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.friendships.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	f := newFriendRouter()

	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.friendships.On("CreateRequest", mock.Anything, 1, 2).Return(models.Friendship{}, repositories.ErrFriendshipExists).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests", gin.H{"user_id": 2})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptFriendRequest(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipPending}, nil).Once()
	f.friendships.On("UpdateStatus", mock.Anything, 5, models.FriendshipAccepted).Return(nil).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests/5/accept", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.friendships.AssertExpectations(t)
}

func TestAcceptFriendRequestWrongRecipient(t *testing.T) {
	f := newFriendRouter()

	// user 1 is the requester here, not the recipient
	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 1, RecipientID: 2, Status: models.FriendshipPending}, nil).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests/5/accept", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.friendships.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptFriendRequestAlreadyResolved(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipAccepted}, nil).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests/5/accept", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.friendships.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeclineFriendRequest(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipPending}, nil).Once()
	f.friendships.On("UpdateStatus", mock.Anything, 5, models.FriendshipDeclined).Return(nil).Once()

	rec := doJSON(f.router, http.MethodPost, "/friends/requests/5/decline", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancelFriendRequest(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 1, RecipientID: 2, Status: models.FriendshipPending}, nil).Once()
	f.friendships.On("Delete", mock.Anything, 5).Return(nil).Once()

	rec := doJSON(f.router, http.MethodDelete, "/friends/requests/5", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancelFriendRequestNotRequester(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetByID", mock.Anything, 5).Return(models.Friendship{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipPending}, nil).Once()

	rec := doJSON(f.router, http.MethodDelete, "/friends/requests/5", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.friendships.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRemoveFriend(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetBetween", mock.Anything, 1, 2).Return(models.Friendship{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipAccepted}, nil).Once()
	f.friendships.On("Delete", mock.Anything, 5).Return(nil).Once()

	rec := doJSON(f.router, http.MethodDelete, "/friends/2", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.friendships.AssertExpectations(t)
}

func TestRemoveFriendNotAccepted(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("GetBetween", mock.Anything, 1, 2).Return(models.Friendship{ID: 5, RequesterID: 1, RecipientID: 2, Status: models.FriendshipPending}, nil).Once()

	rec := doJSON(f.router, http.MethodDelete, "/friends/2", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.friendships.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestListFriendsResolvesOtherParty(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("ListForUser", mock.Anything, 1, models.FriendshipAccepted).Return([]models.Friendship{
		{ID: 5, RequesterID: 1, RecipientID: 2, Status: models.FriendshipAccepted},
		{ID: 6, RequesterID: 3, RecipientID: 1, Status: models.FriendshipAccepted},
	}, nil).Once()
	f.users.On("BulkUsers", mock.Anything, []int{2, 3}).Return([]models.User{
		{ID: 2, Username: "bo"},
		{ID: 3, Username: "cy"},
	}, nil).Once()

	rec := doJSON(f.router, http.MethodGet, "/friends", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Friends []models.User `json:"friends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Friends, 2)
	assert.Equal(t, 2, resp.Friends[0].ID)
	assert.Equal(t, 3, resp.Friends[1].ID)
}

func TestListPendingRequests(t *testing.T) {
	f := newFriendRouter()

	f.friendships.On("ListForUser", mock.Anything, 1, models.FriendshipPending).Return([]models.Friendship{
		{ID: 5, RequesterID: 2, RecipientID: 1, Status: models.FriendshipPending},
	}, nil).Once()

	rec := doJSON(f.router, http.MethodGet, "/friends/requests", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Requests []models.Friendship `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Requests, 1)
}
