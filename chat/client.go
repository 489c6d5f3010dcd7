// mopchan/chat/client.go
package chat

import (
	"encoding/json"
	"sync"
)

// Conn is the minimal bidirectional transport a chat connection needs. The
// concrete implementation is a websocket, but the room only ever touches
// these three operations.
type Conn interface {
	// ReadMessage blocks until the next inbound message or a connection error.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one outbound message. Implementations should bound
	// the write with a deadline.
	WriteMessage(data []byte) error
	Close() error
}

// Client is one live connection registered with a Room.
type Client struct {
	room *Room
	conn Conn

	// Outbound queue. Sends to it must be non-blocking: a client that cannot
	// drain its buffer is disconnected instead of stalling the room.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// inboundMessage is the wire format clients submit.
type inboundMessage struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Listen reads inbound messages from the connection and submits them to the
// room until the connection fails or is closed. It blocks; callers run it on
// the connection's own goroutine. The client is always removed from the room
// on return.
func (c *Client) Listen() {
	defer c.room.Disconnect(c)

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			c.room.logger.Warn("Dropping malformed chat message", "error", err)
			continue
		}
		if _, err := c.room.Send(in.Name, in.Message); err != nil {
			// Validation failures are the sender's problem only; report back
			// on this connection and keep the room going.
			c.reportError(err)
		}
	}
}

// writeLoop drains the outbound queue onto the connection.
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(msg); err != nil {
				// Swallowed deliberately: a failed send to one connection
				// must not propagate to other recipients.
				c.room.logger.Warn("Chat send failed, dropping connection", "error", err)
				c.room.Disconnect(c)
				return
			}
		}
	}
}

// enqueue delivers a message without blocking. On overflow the client is
// closed; its reader then unregisters it from the room.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.room.logger.Warn("Chat client send buffer overflow, closing connection")
		c.close()
	}
}

func (c *Client) reportError(err error) {
	payload, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return
	}
	c.enqueue(payload)
}

// close signals shutdown and closes the underlying connection. Idempotent.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.room.logger.Debug("Error closing chat connection", "error", err)
		}
	})
}
