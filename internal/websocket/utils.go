package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 10 * time.Second
	// Clients ping at least once a minute; anything quieter is gone.
	readDeadline = 5 * time.Minute
)

// Conn wraps a gorilla connection and serializes writes. The event-push
// goroutine and the read-loop replies share one connection, and gorilla
// permits only a single concurrent writer.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn wraps an upgraded connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
// Safe for concurrent use.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes the next message, refreshing the read deadline.
// Only one goroutine may read.
func (c *Conn) ReadJSON(v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	return c.ws.ReadJSON(v)
}

// Close closes the underlying connection. Safe to call from any goroutine;
// it also unblocks a pending ReadJSON.
func (c *Conn) Close() error {
	return c.ws.Close()
}
