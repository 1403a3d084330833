package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a WebSocket connection. gorilla/websocket
// allows one concurrent writer; state pushes and action results come from
// different goroutines.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// Wrap returns a Conn around c.
func Wrap(c *websocket.Conn) *Conn {
	return &Conn{Conn: c}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(action Action, requestID, code, errMsg string, fields map[string]string) error {
	return c.WriteTyped(ErrorResponse{
		Event:     EventError,
		Action:    action,
		RequestID: requestID,
		Code:      code,
		Error:     errMsg,
		Fields:    fields,
	})
}

// ReadMessage reads one raw message with a read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.Conn.ReadMessage()
	return data, err
}
