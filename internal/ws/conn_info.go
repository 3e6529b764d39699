package ws

import "time"

// ConnInfo is the immutable metadata captured when a gateway connection is
// established. It travels with the client for lifecycle events and logging.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
