package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Client frame events
const (
	EventJoinRepository  = "join-repository"
	EventLeaveRepository = "leave-repository"
)

// RoomFor names the real-time room of a repository
func RoomFor(repoID string) string {
	return "repo-" + repoID
}

// Frame is the envelope of every real-time message
type Frame struct {
	Event        string `json:"event"`
	RepositoryID string `json:"repositoryId,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// RoomAuthorizer decides whether a user may join a repository's room
type RoomAuthorizer func(ctx context.Context, userID, repoID string) bool

// Hub fans events out to websocket clients subscribed to repository rooms.
// Delivery is best effort: a client whose buffer is full misses the event.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*client]struct{}
	clients   map[*client]struct{}
	upgrader  websocket.Upgrader
	authorize RoomAuthorizer
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	// guarded by hub.mu
	rooms map[string]struct{}
}

// NewHub creates a hub accepting connections from allowedOrigin.
// An empty origin accepts any origin.
func NewHub(allowedOrigin string, authorize RoomAuthorizer) *Hub {
	h := &Hub{
		rooms:     map[string]map[*client]struct{}{},
		clients:   map[*client]struct{}{},
		authorize: authorize,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowedOrigin == "" || origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			allowed, err := url.Parse(allowedOrigin)
			if err != nil {
				return false
			}
			return u.Scheme == allowed.Scheme && u.Host == allowed.Host
		},
	}
	return h
}

// ServeWS upgrades the request and serves the connection for userID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		rooms:  map[string]struct{}{},
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// Broadcast sends event with data to every client in room
func (h *Hub) Broadcast(room, event string, data any) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		log.Printf("Warning: failed to encode %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			log.Printf("Warning: dropping %s event for slow client %s", event, c.userID)
		}
	}
}

// RoomSize reports how many clients are subscribed to room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = map[*client]struct{}{}
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Warning: websocket read failed for %s: %v", c.userID, err)
			}
			return
		}
		if frame.RepositoryID == "" {
			continue
		}

		switch frame.Event {
		case EventJoinRepository:
			if c.hub.authorize != nil && !c.hub.authorize(context.Background(), c.userID, frame.RepositoryID) {
				continue
			}
			c.hub.join(c, RoomFor(frame.RepositoryID))
		case EventLeaveRepository:
			c.hub.leave(c, RoomFor(frame.RepositoryID))
		}
	}
}

func (c *client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
