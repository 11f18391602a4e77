// Package hub pushes refresh notifications to a user's open browser tabs.
package hub

import (
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Resources named in refresh events.
const (
	ResourceProjects   = "projects"
	ResourceNotes      = "notes"
	ResourceCategories = "categories"
	ResourceResults    = "results"
	ResourceChats      = "chats"
)

type Event struct {
	Type     string `json:"type"`
	Resource string `json:"resource,omitempty"`
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[int]map[*client]bool
	upgrader websocket.Upgrader
}

// New returns a hub accepting upgrades from the given origins. An empty
// list or "*" accepts any origin.
func New(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[int]map[*client]bool)}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Connections returns the number of open connections for a user.
func (h *Hub) Connections(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Broadcast sends a refresh event to every connection of the user.
func (h *Hub) Broadcast(userID int, resource string) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(Event{Type: "refresh", Resource: resource}); err != nil {
			log.Printf("[ws] broadcast to user %d failed: %v", userID, err)
			h.remove(userID, c)
			c.conn.Close()
		}
	}
}

func (h *Hub) add(userID int, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]bool)
	}
	h.clients[userID][c] = true
}

func (h *Hub) remove(userID int, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[userID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
}

// ServeWS upgrades the request and holds the connection until the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.add(userID, c)
	defer func() {
		h.remove(userID, c)
		conn.Close()
	}()

	if err := c.write(Event{Type: "connected"}); err != nil {
		log.Printf("[ws] welcome to user %d failed: %v", userID, err)
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] user %d: %v", userID, err)
			}
			return
		}
	}
}
