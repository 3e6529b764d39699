package ws

import "sync"

// Registry answers "can I push to this user right now". It is not a membership
// authority; conversation membership lives in the store.
type Registry interface {
	Register(userID int, client *Client) (prev *Client)
	Unregister(userID int, client *Client) bool
	IsOnline(userID int) bool
	Handle(userID int) (*Client, bool)
	Snapshot() []*Client
}

// PresenceRegistry is the process-local registry. One live connection per user:
// a later Register evicts the earlier handle and returns it to the caller.
type PresenceRegistry struct {
	mu      sync.RWMutex
	clients map[int]*Client
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{clients: make(map[int]*Client)}
}

// Register stores the client as the user's active connection and returns any
// connection it replaced.
func (r *PresenceRegistry) Register(userID int, client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[userID]
	r.clients[userID] = client
	return prev
}

// Unregister removes the entry only when it still points at this client, so a
// connection evicted by a newer one cannot knock its successor offline.
// Reports whether the entry was removed.
func (r *PresenceRegistry) Unregister(userID int, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[userID]; ok && current == client {
		delete(r.clients, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has a live connection in this process.
func (r *PresenceRegistry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Handle returns the user's active connection, if any.
func (r *PresenceRegistry) Handle(userID int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[userID]
	return client, ok
}

// Snapshot returns every live handle, used for global presence broadcasts.
func (r *PresenceRegistry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}
