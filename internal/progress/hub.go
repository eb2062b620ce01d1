package progress

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Event is one import progress update pushed to dashboard clients watching a
// triggered run.
type Event struct {
	RunID     string    `json:"run_id"`
	AgencyID  string    `json:"agency_id,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Stops     int       `json:"stops,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans import progress events out to connected websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub starts the fan-out loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish broadcasts an event. Non-blocking: when the buffer is full the
// event is dropped rather than stalling the import. Safe on a nil hub so the
// CLI can run without one.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("progress: marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// Handle serves one dashboard connection until the client goes away.
func (h *Hub) Handle(c *websocket.Conn) {
	h.register <- c
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
