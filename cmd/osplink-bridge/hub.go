package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub fans transcript records out to websocket clients. It is an io.Writer
// so it can be a transcript sink; each Write is one record.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	history  [][]byte
	size     int
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHub(historySize int, log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		size:    historySize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Hub) Write(p []byte) (int, error) {
	rec := append([]byte(nil), p...)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, rec)
	if len(h.history) > h.size {
		h.history = h.history[len(h.history)-h.size:]
	}
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		if err := client.WriteMessage(websocket.TextMessage, rec); err != nil {
			h.log.Debug().Err(err).Msg("dropping websocket client")
			client.Close()
			delete(h.clients, client)
		}
	}
	return len(p), nil
}

// ServeHTTP upgrades the request, sends the recent history and then streams
// new records until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	h.mu.Lock()
	for _, rec := range h.history {
		if err := conn.WriteMessage(websocket.TextMessage, rec); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.clients[conn] = true
	h.mu.Unlock()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			return
		}
	}
}
