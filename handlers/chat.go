// mopchan/handlers/chat.go
package handlers

import (
	"net/http"
	"time"

	"mopchan/utils"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 5 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth is not cookie-based, so cross-origin sockets are harmless.
		return true
	},
}

const chatWriteTimeout = 10 * time.Second

// wsConn adapts a gorilla websocket connection to the chat.Conn interface.
// All traffic is text frames carrying JSON.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(chatWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// HandleChat upgrades the request and joins the global chat room. The
// handler blocks until the peer disconnects.
func HandleChat(w http.ResponseWriter, r *http.Request, app App) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an error response.
		app.Logger().Warn("Websocket upgrade failed", "error", err, "ip", utils.GetIPAddress(r))
		return
	}

	client := app.Chat().Connect(&wsConn{ws: ws})
	client.Listen()
}
