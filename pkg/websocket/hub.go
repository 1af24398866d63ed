package websocket

import (
	"context"
	"sync"

	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

// AdminRoom receives operational alerts such as emergencies.
const AdminRoom = "admin_room"

// UserRoom is the personal room every connection of a user joins.
func UserRoom(userID string) string {
	return "user_" + userID
}

// MessageHandler handles an inbound client message.
type MessageHandler func(*Client, *Message)

type delivery struct {
	room string
	msg  *Message
}

// Hub tracks connected clients by room. Only the Run goroutine mutates rooms
// or closes a client's queue.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliveries chan delivery

	handlersMu sync.RWMutex
	handlers   map[string]MessageHandler

	countMu sync.RWMutex
	counts  map[string]int
}

func NewHub() *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan delivery, 256),
		handlers:   make(map[string]MessageHandler),
		counts:     make(map[string]int),
	}
	h.RegisterHandler("ping", func(c *Client, _ *Message) {
		pong := &Message{Event: "pong"}
		select {
		case c.send <- pong:
		default:
		}
	})
	return h
}

// Run processes registrations and deliveries until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logger.Info("websocket hub stopped")
			return
		case client := <-h.register:
			h.join(client)
		case client := <-h.unregister:
			h.leave(client)
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Register adds a client to its user room, and to the admin room for admins.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// SendToRoom queues msg for every client in room. It blocks only while the delivery
// queue is full and gives up when ctx is done.
func (h *Hub) SendToRoom(ctx context.Context, room string, msg *Message) error {
	select {
	case h.deliveries <- delivery{room: room, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendToUser queues msg for every connection of userID.
func (h *Hub) SendToUser(ctx context.Context, userID string, msg *Message) error {
	return h.SendToRoom(ctx, UserRoom(userID), msg)
}

// RegisterHandler registers a handler for an inbound message event.
func (h *Hub) RegisterHandler(event string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[event] = handler
}

// RoomSize reports how many connections are in room.
func (h *Hub) RoomSize(room string) int {
	h.countMu.RLock()
	defer h.countMu.RUnlock()
	return h.counts[room]
}

func (h *Hub) handle(c *Client, msg *Message) {
	h.handlersMu.RLock()
	handler, ok := h.handlers[msg.Event]
	h.handlersMu.RUnlock()
	if !ok {
		logger.Debug("no handler for websocket event", zap.String("event", msg.Event))
		return
	}
	handler(c, msg)
}

func roomsFor(c *Client) []string {
	rooms := []string{UserRoom(c.UserID)}
	if c.Role == "admin" {
		rooms = append(rooms, AdminRoom)
	}
	return rooms
}

func (h *Hub) join(c *Client) {
	for _, room := range roomsFor(c) {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
		h.setCount(room, len(members))
	}
	logger.Debug("websocket client registered", zap.String("user_id", c.UserID), zap.String("role", c.Role))
}

func (h *Hub) leave(c *Client) {
	removed := false
	for _, room := range roomsFor(c) {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		if _, ok := members[c]; ok {
			delete(members, c)
			removed = true
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
		h.setCount(room, len(members))
	}
	if removed {
		close(c.send)
	}
}

func (h *Hub) deliver(d delivery) {
	for c := range h.rooms[d.room] {
		select {
		case c.send <- d.msg:
		default:
			logger.Warn("websocket client too slow, dropping connection", zap.String("user_id", c.UserID))
			h.leave(c)
		}
	}
}

func (h *Hub) closeAll() {
	seen := make(map[*Client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			seen[c] = struct{}{}
		}
	}
	for c := range seen {
		h.leave(c)
	}
}

func (h *Hub) setCount(room string, n int) {
	h.countMu.Lock()
	defer h.countMu.Unlock()
	if n == 0 {
		delete(h.counts, room)
		return
	}
	h.counts[room] = n
}
