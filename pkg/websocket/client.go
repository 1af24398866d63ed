package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// Message is the frame exchanged with clients.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage marshals data into a message stamped with the current time.
func NewMessage(event string, data interface{}) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Event: event, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// Client is one websocket connection. A user may hold several.
type Client struct {
	UserID string
	Role   string
	conn   *websocket.Conn
	hub    *Hub
	send   chan *Message
}

// NewClient creates a client bound to hub. conn may be nil in tests that only exercise routing.
func NewClient(userID, role string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		Role:   role,
		conn:   conn,
		hub:    hub,
		send:   make(chan *Message, sendBufferSize),
	}
}

// Messages exposes the outbound queue.
func (c *Client) Messages() <-chan *Message {
	return c.send
}

// ReadPump pumps inbound frames to the hub's handlers until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		msg.Timestamp = time.Now().UTC()
		c.hub.handle(c, &msg)
	}
}

// WritePump writes queued messages and keepalive pings until the hub closes the queue.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
