// Package observer pushes popup and side-panel updates to panels subscribed
// to a tab over WebSocket.
package observer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"overlaysync/internal/metrics"
)

const (
	TypePopup     = "popup"
	TypeSidePanel = "sidePanel"
)

type Message struct {
	Type string `json:"type"`
	Tab  string `json:"tab"`
	Data any    `json:"data"`
}

type envelope struct {
	tab  string
	data []byte
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	tab  string
	send chan []byte
}

type Hub struct {
	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}
	count      atomic.Int64
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				if c.conn != nil {
					_ = c.conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(2*time.Second),
					)
				}
				h.remove(c)
			}
			h.logger.Debug("observer hub stopped")
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			h.logger.Debug("observer connected", slog.String("tabId", c.tab), slog.Int("total", len(h.clients)))
		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
				h.logger.Debug("observer disconnected", slog.String("tabId", c.tab), slog.Int("total", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.tab != msg.tab {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					metrics.ObserverDroppedTotal.Inc()
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish queues a typed message for the panels of one tab. It never blocks.
func (h *Hub) Publish(tab, msgType string, data any) {
	if h.count.Load() == 0 {
		return
	}
	payload, err := json.Marshal(Message{Type: msgType, Tab: tab, Data: data})
	if err != nil {
		h.logger.Error("observer marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- envelope{tab: tab, data: payload}:
	default:
		metrics.ObserverDroppedTotal.Inc()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP subscribes the connection to the tab named by the tab query
// parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	if tab == "" {
		http.Error(w, "tab is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("observer upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{hub: h, conn: conn, tab: tab, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
