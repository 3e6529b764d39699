package ws

import (
	"sync"
)

// Hub maintains conversation rooms. Joining and leaving are idempotent: joining
// an already-joined room or leaving an unjoined one is a no-op.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[int]map[*Client]struct{}
	memberships map[*Client]map[int]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[int]map[*Client]struct{}),
		memberships: make(map[*Client]map[int]struct{}),
	}
}

// Join adds a client to a conversation room.
func (h *Hub) Join(conversationID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][client] = struct{}{}
	if _, ok := h.memberships[client]; !ok {
		h.memberships[client] = make(map[int]struct{})
	}
	h.memberships[client][conversationID] = struct{}{}
}

// Leave removes a client from a conversation room.
func (h *Hub) Leave(conversationID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, client)
}

// LeaveAll removes the client from every room it joined.
func (h *Hub) LeaveAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.memberships[client] {
		h.leaveLocked(conversationID, client)
	}
	delete(h.memberships, client)
}

func (h *Hub) leaveLocked(conversationID int, client *Client) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.memberships[client]; ok {
		delete(rooms, conversationID)
	}
}

// Broadcast sends an event to every client in the room. A non-nil except is
// skipped (typing relays exclude the sender; message fan-out does not).
func (h *Hub) Broadcast(conversationID int, event interface{}, except *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for client := range h.rooms[conversationID] {
		if client != except {
			members = append(members, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range members {
		client.SendEvent(event)
	}
}

// RoomSize reports how many connections are joined to a room.
func (h *Hub) RoomSize(conversationID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
