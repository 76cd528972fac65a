package websocket

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dispatcher dashboards and customer pages connect from anywhere.
		return true
	},
}

// HandleWebSocket upgrades the HTTP connection and starts the client pumps.
// Clients subscribe to a job's updates by sending a join_job_tracking
// message with the job id.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub)

		go client.WritePump()
		go client.ReadPump()

		log.Printf("✅ WebSocket connection established: %s", client.ID)
	}
}
