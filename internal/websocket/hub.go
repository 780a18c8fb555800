package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	sendBufferSize = 256
	// Clients only ever send control frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection subscribed to a client ID
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans progress updates out to every connection of a client ID
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logrus.Logger
	mutex      sync.RWMutex

	// A connection that misses a pong for pongWait is closed. Pings go out
	// every pingPeriod, which must be shorter than pongWait.
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
	}
}

// Run handles registration until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for _, set := range h.clients {
				for client := range set {
					h.removeLocked(client)
				}
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.ID] == nil {
				h.clients[client.ID] = make(map[*Client]struct{})
			}
			h.clients[client.ID][client] = struct{}{}
			total := h.countLocked()
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"client_id":     client.ID,
				"total_clients": total,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			total := h.countLocked()
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"client_id":     client.ID,
				"total_clients": total,
			}).Info("WebSocket client disconnected")
		}
	}
}

// removeLocked is a no-op for clients that were already removed
func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.ID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.ID)
	}
}

func (h *Hub) countLocked() int {
	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}

// HandleWebSocket upgrades GET /ws/progress/:client_id
func (h *Hub) HandleWebSocket(c *gin.Context) {
	clientID := c.Param("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:   clientID,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// SendToClient delivers a message to every connection of clientID. Connections
// whose buffer is full are dropped.
func (h *Hub) SendToClient(clientID string, message interface{}) {
	h.mutex.RLock()
	connected := len(h.clients[clientID]) > 0
	h.mutex.RUnlock()
	if !connected {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients[clientID] {
		select {
		case client.send <- data:
		default:
			h.removeLocked(client)
		}
	}
}

// SendProgress pushes a progress update; progress is clamped to [0, 1]
func (h *Hub) SendProgress(clientID, step string, progress float64, message string) {
	if clientID == "" {
		return
	}
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	h.SendToClient(clientID, types.ProgressUpdate{
		Type:        "progress",
		Progress:    progress,
		Message:     message,
		CurrentStep: step,
		Timestamp:   time.Now(),
	})
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.countLocked()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Error("WebSocket error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
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
				c.hub.logger.WithError(err).Error("Failed to write WebSocket message")
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
