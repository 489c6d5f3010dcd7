// mopchan/chat/room.go

// Package chat implements the real-time broadcast room: a transcript of
// ephemeral messages fanned out to every live connection. The transcript
// append is the single source of truth; broadcast is a side effect of
// exactly one successful append, keyed by a server-assigned message id.
package chat

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"mopchan/models"
	"mopchan/utils"

	"github.com/google/uuid"
)

// Room holds the chat transcript and the set of live connections.
type Room struct {
	logger     *slog.Logger
	maxBodyLen int
	sendBuffer int

	mu      sync.Mutex
	clients map[*Client]struct{}
	// Replay window. A ring would be overkill at this size; the slice is
	// re-sliced once it exceeds historySize.
	history     []models.ChatMessage
	historySize int
}

func NewRoom(historySize, sendBuffer, maxBodyLen int, logger *slog.Logger) *Room {
	return &Room{
		logger:      logger,
		maxBodyLen:  maxBodyLen,
		sendBuffer:  sendBuffer,
		clients:     make(map[*Client]struct{}),
		historySize: historySize,
	}
}

// Connect registers a transport as a live connection. The new client first
// receives a snapshot of the recent transcript, then every message broadcast
// after it opened. Callers must run Listen on the returned client.
func (r *Room) Connect(conn Conn) *Client {
	c := &Client{
		room: r,
		conn: conn,
		// Headroom for the replay snapshot, which is enqueued before the
		// write loop has had a chance to drain anything.
		send: make(chan []byte, r.sendBuffer+r.historySize),
		done: make(chan struct{}),
	}

	// Registration and replay happen under the same lock, so no broadcast
	// can interleave between the snapshot and the live stream.
	r.mu.Lock()
	r.clients[c] = struct{}{}
	for _, msg := range r.history {
		if data, err := json.Marshal(msg); err == nil {
			c.enqueue(data)
		}
	}
	n := len(r.clients)
	r.mu.Unlock()

	go c.writeLoop()

	r.logger.Info("Chat client connected", "clients", n)
	return c
}

// Disconnect removes a client from the broadcast set and closes it.
// Safe to call more than once.
func (r *Room) Disconnect(c *Client) {
	r.mu.Lock()
	_, present := r.clients[c]
	delete(r.clients, c)
	n := len(r.clients)
	r.mu.Unlock()

	c.close()
	if present {
		r.logger.Info("Chat client disconnected", "clients", n)
	}
}

// ClientCount returns the number of live connections.
func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Send validates and appends a message to the transcript, then broadcasts it
// to a snapshot of the live connections. The server assigns the id and
// timestamp; a tripcode is derived from any "#password" suffix in the name.
func (r *Room) Send(name, body string) (models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.ChatMessage{}, models.ValidationError{Reason: "chat message must not be empty"}
	}
	if len(body) > r.maxBodyLen {
		return models.ChatMessage{}, models.ValidationError{Reason: "chat message is too long"}
	}

	displayName, tripcode := utils.GenerateTripcode(name)
	if displayName == "" {
		displayName = "Anonymous"
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Name:      displayName,
		Tripcode:  tripcode,
		Body:      body,
		Timestamp: utils.GetSQLTime(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return models.ChatMessage{}, err
	}

	r.mu.Lock()
	r.history = append(r.history, msg)
	if len(r.history) > r.historySize {
		r.history = r.history[len(r.history)-r.historySize:]
	}
	recipients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		recipients = append(recipients, c)
	}
	r.mu.Unlock()

	// The snapshot decouples fan-out from the connection set: connections
	// opened after this point do not receive the message, and a stalled
	// recipient only hurts itself (enqueue never blocks).
	for _, c := range recipients {
		c.enqueue(data)
	}

	return msg, nil
}

// History returns a copy of the current replay window, oldest first.
func (r *Room) History() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChatMessage(nil), r.history...)
}
