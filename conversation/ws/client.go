package ws

import (
	"encoding/json"
	"time"

	"llm-arena/backend/conversation/service"
	"llm-arena/backend/pkg/logger"
	pkgws "llm-arena/backend/pkg/ws"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control frames
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

// Client is one websocket connection. topics and closed are owned by the
// hub's Run goroutine.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *logger.Logger
	topics map[string]bool
	closed bool
}

func newClient(id, userID string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
		log:    log.With("client_id", id),
		topics: make(map[string]bool),
	}
}

// readPump handles subscribe and unsubscribe frames until the peer goes away
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket closed unexpectedly", "error", err)
			}
			return
		}

		var frame struct {
			Type    string                 `json:"type"`
			Content pkgws.SubscribeRequest `json:"content"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Content.SessionID == "" {
			c.log.Debug("Ignoring malformed frame")
			continue
		}

		sub := subscription{client: c, topic: service.Topic(frame.Content.SessionID)}
		switch frame.Type {
		case pkgws.TypeSubscribe:
			c.hub.subscribe <- sub
		case pkgws.TypeUnsubscribe:
			c.hub.unsubscribe <- sub
		default:
			c.log.Debug("Unknown frame type", "type", frame.Type)
		}
	}
}

// writePump relays queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
