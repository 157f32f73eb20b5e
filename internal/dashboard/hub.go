// Package dashboard streams live task and sync events to WebSocket clients.
//
// The Hub is mounted on the API server at /ws. Every mutation served by the
// API and every batch reconcile is broadcast, so a browser tab or a
// `websocat` session can watch devices converge in real time.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeTaskUpdate indicates a task was created, updated, or deleted
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeSyncComplete indicates a device batch was reconciled
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeStats indicates updated task statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds hub configuration
type Config struct {
	// Buffer is the broadcast queue length (default: 100)
	Buffer int

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Buffer: 100,
		Logger: log.Default(),
	}
}

// Hub manages WebSocket connections and broadcasts dashboard messages.
// It implements http.Handler for the upgrade endpoint.
type Hub struct {
	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message
	welcome   func() Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub. Call Start before broadcasting.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Buffer <= 0 {
		config.Buffer = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, config.Buffer),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start runs the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop closes every client and waits for the broadcast loop to exit.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Broadcast queues a message for every connected client. Messages are
// dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case <-h.ctx.Done():
		return
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// setWelcome installs the message sent to each client on connect.
func (h *Hub) setWelcome(fn func() Message) {
	h.clientsMu.Lock()
	h.welcome = fn
	h.clientsMu.Unlock()
}

// broadcastLoop handles message broadcasting to all clients
func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection to WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.RLock()
	welcome := h.welcome
	h.clientsMu.RUnlock()

	// The welcome goes out before registration so it is always first.
	msg := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if welcome != nil {
		msg = welcome()
	}
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, data)
	cancel()
	if err != nil {
		h.logger.Printf("Failed to send welcome: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Client connected (total: %d)", clientCount)

	go h.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}
