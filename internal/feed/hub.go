// Package feed streams playback progress to websocket clients.
package feed

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/audio"
	"github.com/book-expert/speech-studio/internal/playback"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const writeTimeout = 2 * time.Second

// Message is the JSON frame sent for every progress report.
type Message struct {
	ChunkID       int     `json:"chunkId"`
	Elapsed       float64 `json:"elapsed"`
	Duration      float64 `json:"duration"`
	State         string  `json:"state"`
	ElapsedLabel  string  `json:"elapsedLabel"`
	DurationLabel string  `json:"durationLabel"`
}

// NewMessage converts a progress report to its wire form.
func NewMessage(progress playback.Progress) Message {
	return Message{
		ChunkID:       progress.ChunkID,
		Elapsed:       progress.Elapsed,
		Duration:      progress.Duration,
		State:         string(progress.State),
		ElapsedLabel:  audio.FormatDuration(progress.Elapsed),
		DurationLabel: audio.FormatDuration(progress.Duration),
	}
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Hub fans progress reports out to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub with no clients.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Progress feed upgrade failed: %v", err)

		return
	}

	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("Progress feed client connected from %s", r.RemoteAddr)

	// Incoming frames are ignored; reading keeps control frames flowing and
	// notices the disconnect.
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}

	h.drop(c)
}

// Publish sends progress to every client. Clients that cannot be written to
// are dropped.
func (h *Hub) Publish(progress playback.Progress) {
	frame, err := sonic.Marshal(NewMessage(progress))
	if err != nil {
		h.log.Error("Failed to encode progress: %v", err)

		return
	}

	h.mu.Lock()

	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}

	h.mu.Unlock()

	for _, c := range clients {
		err = c.send(frame)
		if err != nil {
			h.log.Warn("Dropping progress feed client: %v", err)
			h.drop(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()

	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}

	h.clients = make(map[*client]struct{})

	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
	}
}
