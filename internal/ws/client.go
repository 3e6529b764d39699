package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 64

// Client wraps one gateway connection. All writes go through the buffered send
// channel and a single writeLoop goroutine, so concurrent broadcasts never write
// to the socket directly.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	info ConnInfo

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient builds a client and starts its write loop. A nil conn is allowed in
// tests; enqueued frames are then dropped.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		info: info,
	}
	c.done = make(chan struct{})
	go c.writeLoop()
	return c
}

// Info returns the connection metadata captured at handshake time.
func (c *Client) Info() ConnInfo {
	return c.info
}

// UserID returns the authenticated user behind this connection.
func (c *Client) UserID() int {
	return c.info.UserID
}

// SendEvent marshals and enqueues a frame. A full buffer drops the frame rather
// than blocking a broadcast.
func (c *Client) SendEvent(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		log.Printf("websocket send buffer full conn=%s user=%d, dropping frame", c.info.ConnID, c.info.UserID)
	}
}

// Close stops the write loop and closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) writeLoop() {
	for {
		select {
		case payload := <-c.send:
			if c.conn == nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
