package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains active WebSocket connections grouped into per-job rooms
// and fans tracking updates out to them.
type Hub struct {
	// Connections subscribed per job (jobID -> set of clients)
	rooms map[string]map[*Client]bool

	// Outbound updates to a job's room
	broadcast chan *Message

	// Subscribe requests from clients
	join chan *subscription

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// Message is one update addressed to a job's room.
type Message struct {
	JobID string
	Data  interface{}
}

type subscription struct {
	client *Client
	jobID  string
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		join:       make(chan *subscription),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.join:
			h.mu.Lock()
			room, ok := h.rooms[sub.jobID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[sub.jobID] = room
			}
			room[sub.client] = true
			sub.client.jobs[sub.jobID] = true
			h.mu.Unlock()
			log.Printf("✅ [WEBSOCKET] Client %s joined room tracking_%s (%d subscribers)", sub.client.ID, sub.jobID, len(room))

		case client := <-h.unregister:
			h.mu.Lock()
			for jobID := range client.jobs {
				if room, ok := h.rooms[jobID]; ok {
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, jobID)
					}
				}
			}
			if !client.closed {
				client.closed = true
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("🔴 [WEBSOCKET] Client %s disconnected", client.ID)

		case message := <-h.broadcast:
			h.mu.RLock()
			room := h.rooms[message.JobID]
			if len(room) > 0 {
				data, err := json.Marshal(message.Data)
				if err != nil {
					log.Printf("❌ Failed to marshal update for job %s: %v", message.JobID, err)
					h.mu.RUnlock()
					continue
				}
				for client := range room {
					select {
					case client.send <- data:
					default:
						// Client buffer full; it will be dropped by its
						// own write pump, just skip delivery here.
						log.Printf("⚠️  Client %s buffer full, skipping update", client.ID)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish sends an update to every subscriber of a job. Best-effort: a
// disconnected subscriber simply misses updates until it rejoins.
func (h *Hub) Publish(jobID string, data interface{}) {
	h.broadcast <- &Message{
		JobID: jobID,
		Data:  data,
	}
}

// SubscriberCount returns the number of connections in a job's room.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[jobID])
}
