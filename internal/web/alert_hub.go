package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/cheeseball/internal/usecase"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

type hubClient struct {
	conn   *websocket.Conn
	userID int64
	send   chan []byte
	once   sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// AlertHub fans triggered-alert events out to each user's open websocket
// connections.
type AlertHub struct {
	mu       sync.Mutex
	clients  map[int64]map[*hubClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewAlertHub(logger *zap.Logger) *AlertHub {
	h := &AlertHub{
		clients: make(map[int64]map[*hubClient]struct{}),
		logger:  logger.With(zap.String("component", "alert_hub")),
	}
	// Any origin; streams authenticate by token.
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return h
}

// NotifyAlert queues event for every connection of userID. A connection
// whose buffer is full is dropped.
func (h *AlertHub) NotifyAlert(userID int64, event usecase.AlertEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode alert event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow alert stream client", zap.Int64("user_id", userID))
			h.removeLocked(c)
		}
	}
}

// ConnectionCount returns the number of open streams for userID.
func (h *AlertHub) ConnectionCount(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close ends every stream. Later upgrades are refused.
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *AlertHub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *AlertHub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *AlertHub) removeLocked(c *hubClient) {
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	c.close()
}

// Serve upgrades the request and blocks until the connection ends.
func (h *AlertHub) Serve(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hubClient{conn: conn, userID: userID, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Debug("Alert stream opened", zap.Int64("user_id", userID))

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages and keeps the pong deadline fresh.
func (h *AlertHub) readLoop(c *hubClient) {
	defer func() {
		h.unregister(c)
		h.logger.Debug("Alert stream closed", zap.Int64("user_id", c.userID))
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *AlertHub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Alert stream disabled")
		return
	}
	s.hub.Serve(w, r, identityFrom(r.Context()).UserID)
}
