package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/motorgrid/exportd/internal/export/structs"
	"github.com/motorgrid/exportd/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// WSMessage is the frame pushed to websocket clients on every export
// job update.
type WSMessage struct {
	Type      string       `json:"type"`
	Job       *structs.Job `json:"job,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub maintains connected websocket clients and fans export updates out
// to them.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan *WSMessage
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a websocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     log,
	}
}

// Run starts the hub loop. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info(ctx, "Websocket client connected", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info(ctx, "Websocket client disconnected", "client_id", client.id)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Broadcast queues a frame for every connected client. A full hub
// buffer drops the frame rather than blocking the caller.
func (h *Hub) Broadcast(message *WSMessage) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn(context.Background(), "Websocket broadcast buffer full, dropping frame")
	}
}

// BroadcastJob pushes a job snapshot to all clients.
func (h *Hub) BroadcastJob(job *structs.Job) {
	h.Broadcast(&WSMessage{
		Type:      "export.update",
		Job:       job,
		Timestamp: time.Now(),
	})
}

func (h *Hub) broadcastMessage(message *WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error(context.Background(), "Failed to marshal websocket frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; the frame is dropped for this client only.
			h.logger.Warn(context.Background(), "Websocket send buffer full", "client_id", client.id)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsClient is one websocket connection.
type wsClient struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger
}

func newWSClient(hub *Hub, conn *websocket.Conn, log *logger.Logger) *wsClient {
	return &wsClient{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: log,
	}
}

// readPump drains the connection. Clients only listen; inbound frames
// beyond pings are discarded.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error(context.Background(), "Websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error(context.Background(), "Websocket write error", "client_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
