package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs subscribes a websocket connection to a session's event stream and
// blocks until the connection drops or the session closes.
func ServeWs(hub *Hub, c *websocket.Conn, sessionId uuid.UUID) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionId, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
