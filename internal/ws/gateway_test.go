package ws

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

type gatewayFixture struct {
	gateway       *Gateway
	hub           *Hub
	presence      *PresenceRegistry
	users         *mocks.UserRepositoryMock
	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
}

func newGatewayFixture() gatewayFixture {
	hub := NewHub()
	presence := NewPresenceRegistry()
	users := new(mocks.UserRepositoryMock)
	conversations := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	gateway := NewGateway(hub, presence, users, conversations, messages, nil)
	return gatewayFixture{
		gateway:       gateway,
		hub:           hub,
		presence:      presence,
		users:         users,
		conversations: conversations,
		messages:      messages,
	}
}

func decodeFrame[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var event T
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func groupConversation(id int, adminID int, participants ...int) models.Conversation {
	return models.Conversation{
		ID:           id,
		Kind:         models.ConversationGroup,
		AdminID:      &adminID,
		Participants: participants,
	}
}

func TestGatewaySendPersistsAndEchoesToSender(t *testing.T) {
	f := newGatewayFixture()
	sender := newTestClient(1)
	peer := newTestClient(2)
	f.hub.Join(7, sender)
	f.hub.Join(7, peer)

	createdAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	stored := models.Message{ID: 5, ConversationID: 7, SenderID: 1, Content: "hello", CreatedAt: createdAt, ReadBy: []int{1}}

	f.conversations.On("GetConversation", mock.Anything, 7).Return(groupConversation(7, 1, 1, 2), nil).Once()
	f.messages.On("CreateMessage", mock.Anything, 7, 1, "hello").Return(stored, nil).Once()
	f.conversations.On("UpdateLastMessage", mock.Anything, 7, "hello", 1, createdAt).Return(nil).Once()
	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "ana", Email: "ana@example.com"}, nil).Once()

	f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventMessageSend, ConversationID: 7, Content: "  hello  "})

	senderFrames := receivedFrames(sender)
	require.Len(t, senderFrames, 1, "sender's own connection receives the echo")
	echo := decodeFrame[models.MessageReceiveEvent](t, senderFrames[0])
	assert.Equal(t, models.EventMessageReceive, echo.Type)
	assert.Equal(t, 5, echo.Message.ID)
	assert.Equal(t, "hello", echo.Message.Content)
	assert.Equal(t, []int{1}, echo.Message.ReadBy, "read-by starts as the sender alone")
	assert.Equal(t, "ana", echo.Message.SenderUsername)

	peerFrames := receivedFrames(peer)
	require.Len(t, peerFrames, 1)
	received := decodeFrame[models.MessageReceiveEvent](t, peerFrames[0])
	assert.Equal(t, 5, received.Message.ID)

	f.conversations.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

func TestGatewaySendNonParticipantStoresNothing(t *testing.T) {
	f := newGatewayFixture()
	sender := newTestClient(1)

	f.conversations.On("GetConversation", mock.Anything, 7).Return(groupConversation(7, 2, 2, 3), nil).Once()

	f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventMessageSend, ConversationID: 7, Content: "hello"})

	frames := receivedFrames(sender)
	require.Len(t, frames, 1)
	failure := decodeFrame[models.ErrorEvent](t, frames[0])
	assert.Equal(t, models.EventError, failure.Type)
	assert.Equal(t, "conversation not found", failure.Message)

	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.conversations.AssertNotCalled(t, "UpdateLastMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewaySendRejectsBadContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"blank", "   "},
		{"too long", strings.Repeat("x", models.MaxMessageLength+1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGatewayFixture()
			sender := newTestClient(1)

			f.conversations.On("GetConversation", mock.Anything, 7).Return(groupConversation(7, 1, 1, 2), nil).Once()

			f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventMessageSend, ConversationID: 7, Content: tc.content})

			frames := receivedFrames(sender)
			require.Len(t, frames, 1)
			failure := decodeFrame[models.ErrorEvent](t, frames[0])
			assert.Equal(t, "invalid message content", failure.Message)

			f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGatewaySendTruncatesPreview(t *testing.T) {
	f := newGatewayFixture()
	sender := newTestClient(1)
	f.hub.Join(7, sender)

	content := strings.Repeat("a", models.PreviewLength+50)
	wantPreview := strings.Repeat("a", models.PreviewLength)
	createdAt := time.Now()
	stored := models.Message{ID: 6, ConversationID: 7, SenderID: 1, Content: content, CreatedAt: createdAt, ReadBy: []int{1}}

	f.conversations.On("GetConversation", mock.Anything, 7).Return(groupConversation(7, 1, 1, 2), nil).Once()
	f.messages.On("CreateMessage", mock.Anything, 7, 1, content).Return(stored, nil).Once()
	f.conversations.On("UpdateLastMessage", mock.Anything, 7, wantPreview, 1, createdAt).Return(nil).Once()
	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "ana"}, nil).Once()

	f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventMessageSend, ConversationID: 7, Content: content})

	f.conversations.AssertExpectations(t)
}

func TestGatewayTypingExcludesSender(t *testing.T) {
	f := newGatewayFixture()
	sender := newTestClient(1)
	peer := newTestClient(2)
	f.hub.Join(7, sender)
	f.hub.Join(7, peer)

	f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventTypingStart, ConversationID: 7})
	f.gateway.dispatch(context.Background(), sender, models.ClientEvent{Type: models.EventTypingStop, ConversationID: 7})

	require.Empty(t, receivedFrames(sender))

	frames := receivedFrames(peer)
	require.Len(t, frames, 2)
	start := decodeFrame[models.TypingUpdateEvent](t, frames[0])
	assert.Equal(t, models.EventTypingUpdate, start.Type)
	assert.Equal(t, 1, start.UserID)
	assert.True(t, start.IsTyping)
	stop := decodeFrame[models.TypingUpdateEvent](t, frames[1])
	assert.False(t, stop.IsTyping)
}

func TestGatewayReadNotifiesRoom(t *testing.T) {
	f := newGatewayFixture()
	reader := newTestClient(2)
	peer := newTestClient(1)
	f.hub.Join(7, reader)
	f.hub.Join(7, peer)

	f.conversations.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil).Once()
	f.messages.On("MarkConversationRead", mock.Anything, 7, 2).Return(3, nil).Once()

	f.gateway.dispatch(context.Background(), reader, models.ClientEvent{Type: models.EventMessagesRead, ConversationID: 7})

	for _, client := range []*Client{reader, peer} {
		frames := receivedFrames(client)
		require.Len(t, frames, 1)
		update := decodeFrame[models.ReadUpdateEvent](t, frames[0])
		assert.Equal(t, models.EventReadUpdate, update.Type)
		assert.Equal(t, 7, update.ConversationID)
		assert.Equal(t, 2, update.UserID)
	}

	f.messages.AssertExpectations(t)
}

func TestGatewayReadRequiresMembership(t *testing.T) {
	f := newGatewayFixture()
	reader := newTestClient(5)

	f.conversations.On("IsParticipant", mock.Anything, 7, 5).Return(false, nil).Once()

	f.gateway.dispatch(context.Background(), reader, models.ClientEvent{Type: models.EventMessagesRead, ConversationID: 7})

	frames := receivedFrames(reader)
	require.Len(t, frames, 1)
	failure := decodeFrame[models.ErrorEvent](t, frames[0])
	assert.Equal(t, "conversation not found", failure.Message)

	f.messages.AssertNotCalled(t, "MarkConversationRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewayUnknownEventType(t *testing.T) {
	f := newGatewayFixture()
	client := newTestClient(1)

	f.gateway.dispatch(context.Background(), client, models.ClientEvent{Type: "message:edit"})

	frames := receivedFrames(client)
	require.Len(t, frames, 1)
	failure := decodeFrame[models.ErrorEvent](t, frames[0])
	assert.Equal(t, "unknown event type", failure.Message)
}

func TestGatewayConnectAndDisconnect(t *testing.T) {
	f := newGatewayFixture()
	observer := newTestClient(2)
	f.presence.Register(2, observer)

	client := newTestClient(1)
	start := time.Now()

	f.users.On("SetOnline", mock.Anything, 1).Return(nil).Once()
	f.conversations.On("ConversationIDsForUser", mock.Anything, 1).Return([]int{4, 9}, nil).Once()

	f.gateway.connect(context.Background(), client)

	assert.True(t, f.presence.IsOnline(1))
	assert.Equal(t, 1, f.hub.RoomSize(4))
	assert.Equal(t, 1, f.hub.RoomSize(9))

	frames := receivedFrames(observer)
	require.Len(t, frames, 1)
	online := decodeFrame[models.PresenceEvent](t, frames[0])
	assert.Equal(t, models.EventUserOnline, online.Type)
	assert.Equal(t, 1, online.UserID)
	require.Empty(t, receivedFrames(client), "subject does not receive its own presence event")

	f.users.On("SetOffline", mock.Anything, 1, mock.MatchedBy(func(at time.Time) bool {
		return !at.Before(start)
	})).Return(nil).Once()

	f.gateway.disconnect(context.Background(), client)

	assert.False(t, f.presence.IsOnline(1))
	assert.Equal(t, 0, f.hub.RoomSize(4))
	assert.Equal(t, 0, f.hub.RoomSize(9))

	frames = receivedFrames(observer)
	require.Len(t, frames, 1)
	offline := decodeFrame[models.PresenceEvent](t, frames[0])
	assert.Equal(t, models.EventUserOffline, offline.Type)

	f.users.AssertExpectations(t)
	f.conversations.AssertExpectations(t)
}

func TestGatewayReconnectEvictsEarlierConnection(t *testing.T) {
	f := newGatewayFixture()

	first := newTestClient(1)
	second := newTestClient(1)

	f.users.On("SetOnline", mock.Anything, 1).Return(nil).Twice()
	f.conversations.On("ConversationIDsForUser", mock.Anything, 1).Return([]int{4}, nil).Twice()

	f.gateway.connect(context.Background(), first)
	f.gateway.connect(context.Background(), second)

	// the evicted connection left every room; only the new one remains joined
	assert.Equal(t, 1, f.hub.RoomSize(4))

	// the stale connection's teardown runs after eviction and must not mark the
	// user offline
	f.gateway.disconnect(context.Background(), first)

	assert.True(t, f.presence.IsOnline(1))
	assert.Equal(t, 1, f.hub.RoomSize(4))
	f.users.AssertNotCalled(t, "SetOffline", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))

	long := strings.Repeat("é", models.PreviewLength+1)
	got := Preview(long)
	assert.Equal(t, models.PreviewLength, len([]rune(got)))
	assert.Equal(t, strings.Repeat("é", models.PreviewLength), got)
}
