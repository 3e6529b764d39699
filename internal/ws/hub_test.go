package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

// newTestClient builds a client without a write loop so tests can read the
// frames that were enqueued for it.
func newTestClient(userID int) *Client {
	return &Client{
		conn: nil,
		send: make(chan []byte, sendBufferSize),
		info: ConnInfo{ConnID: newConnID(), UserID: userID},
		done: make(chan struct{}),
	}
}

func receivedFrames(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case payload := <-c.send:
			frames = append(frames, payload)
		default:
			return frames
		}
	}
}

func TestHubJoinLeave(t *testing.T) {
	hub := NewHub()
	client := newTestClient(1)

	hub.Join(5, client)
	require.Equal(t, 1, hub.RoomSize(5))

	// joining an already-joined room is a no-op
	hub.Join(5, client)
	require.Equal(t, 1, hub.RoomSize(5))

	hub.Leave(5, client)
	require.Equal(t, 0, hub.RoomSize(5))

	// leaving a non-joined room is a no-op, never an error
	hub.Leave(5, client)
	require.Equal(t, 0, hub.RoomSize(5))
}

func TestHubLeaveAll(t *testing.T) {
	hub := NewHub()
	client := newTestClient(1)
	other := newTestClient(2)

	hub.Join(1, client)
	hub.Join(2, client)
	hub.Join(2, other)

	hub.LeaveAll(client)

	require.Equal(t, 0, hub.RoomSize(1))
	require.Equal(t, 1, hub.RoomSize(2))
}

func TestHubBroadcastIncludesSender(t *testing.T) {
	hub := NewHub()
	sender := newTestClient(1)
	peer := newTestClient(2)
	hub.Join(7, sender)
	hub.Join(7, peer)

	hub.Broadcast(7, models.ReadUpdateEvent{Type: models.EventReadUpdate, ConversationID: 7, UserID: 1}, nil)

	require.Len(t, receivedFrames(sender), 1)
	require.Len(t, receivedFrames(peer), 1)
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub()
	sender := newTestClient(1)
	peer := newTestClient(2)
	hub.Join(7, sender)
	hub.Join(7, peer)

	hub.Broadcast(7, models.TypingUpdateEvent{Type: models.EventTypingUpdate, ConversationID: 7, UserID: 1, IsTyping: true}, sender)

	require.Empty(t, receivedFrames(sender))

	frames := receivedFrames(peer)
	require.Len(t, frames, 1)
	var event models.TypingUpdateEvent
	require.NoError(t, json.Unmarshal(frames[0], &event))
	require.Equal(t, models.EventTypingUpdate, event.Type)
	require.Equal(t, 1, event.UserID)
	require.True(t, event.IsTyping)
}

func TestHubBroadcastEmptyRoom(t *testing.T) {
	hub := NewHub()
	// broadcasting to a room nobody joined must not panic
	hub.Broadcast(42, models.PresenceEvent{Type: models.EventUserOnline, UserID: 9}, nil)
}
