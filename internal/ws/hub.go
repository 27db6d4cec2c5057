// Package ws provides the WebSocket hub that pushes offline subsystem
// events (sync status, connectivity transitions) to connected UI clients.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telos-app/telos-offline/internal/logging"
	"github.com/telos-app/telos-offline/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The hub only serves the local UI.
		return true
	},
}

// Event types pushed to clients.
const (
	EventSyncStatus    = "sync.status"
	EventNetworkStatus = "network.status"
	EventOfflineSaved  = "offline.saved"
)

// Envelope wraps every hub message.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// client is one connected UI client.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains active client connections and broadcasts events.
type Hub struct {
	clients    map[string]*client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	go h.run()
	return h
}

// run manages client connections and broadcasts.
func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected",
				map[string]interface{}{"client_id": c.id, "total": total})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected",
				map[string]interface{}{"client_id": c.id, "total": total})

		case message := <-h.broadcast:
			h.mu.Lock()
			for _, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Send buffer full, drop the client.
					close(c.send)
					delete(h.clients, c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal WebSocket envelope", err)
		return
	}

	h.broadcast <- payload
}

// BroadcastSyncStatus pushes a sync status transition.
func (h *Hub) BroadcastSyncStatus(status string) {
	h.Broadcast(EventSyncStatus, map[string]interface{}{"status": status})
}

// BroadcastNetworkStatus pushes a connectivity transition.
func (h *Hub) BroadcastNetworkStatus(online bool) {
	h.Broadcast(EventNetworkStatus, map[string]interface{}{"online": online})
}

// BroadcastOfflineSaved announces that an item became available offline.
func (h *Hub) BroadcastOfflineSaved(itemID string) {
	h.Broadcast(EventOfflineSaved, map[string]interface{}{"item_id": itemID})
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// writePump drains the send channel onto the connection.
func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
