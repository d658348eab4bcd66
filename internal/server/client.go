package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// client is one websocket connection bound to a game room.
type client struct {
	room     *room
	conn     *websocket.Conn
	send     chan []byte
	playerID string
	logger   *zap.Logger
}

// safeSend queues data without blocking. A full or closed channel drops
// the message.
func (c *client) safeSend(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("send on closed client", zap.Any("panic", r))
		}
	}()
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full; dropping message")
	}
}

func (c *client) sendError(text string) {
	c.safeSend(encode(Message{Type: TypeError, Error: text}))
}

// readPump feeds inbound messages to the room until the connection fails.
func (c *client) readPump(maxMessageSize int64) {
	defer func() {
		c.room.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.room.handle(c, msg)
	}
}

// writePump drains the send channel to the connection and keeps it alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
