// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBuffer     = 16
)

// Client is one websocket connection bound to an authenticated credential.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	credentialID string
	sessionID    string

	send      chan *Event
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewClient registers a fresh connection with the hub and starts its pumps.
func NewClient(hub *Hub, conn *websocket.Conn, credentialID, sessionID string, logger *zap.Logger) *Client {
	client := &Client{
		hub:          hub,
		conn:         conn,
		credentialID: credentialID,
		sessionID:    sessionID,
		send:         make(chan *Event, sendBuffer),
		logger:       logger,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return client
	}
	go client.writePump()
	go client.readPump()

	return client
}

// Send queues an event for delivery, dropping it if the client is slow.
func (c *Client) Send(ev *Event) {
	select {
	case c.send <- ev:
	default:
		c.logger.Warn("ws send buffer full, dropping event",
			zap.String("cred_id", c.credentialID))
	}
}

// Close shuts the outbound channel; the write pump closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump drains inbound frames. Clients never send application messages;
// reading only services pong frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ws read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("failed to marshal ws event", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
