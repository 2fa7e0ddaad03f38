package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oilbaron/sim-engine/internal/game"
	"github.com/oilbaron/sim-engine/internal/metrics"
)

// Message types pushed to websocket clients.
const (
	MsgHello    = "hello"
	MsgSnapshot = "snapshot"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type     string              `json:"type"`
	Session  string              `json:"session"`
	Snapshot *game.Snapshot      `json:"snapshot,omitempty"`
	Offline  *game.OfflineReport `json:"offline,omitempty"`
}

type envelope struct {
	identity string
	data     []byte
}

type client struct {
	conn     *websocket.Conn
	identity string
}

// WSHub pushes snapshots to the websocket clients of the identity whose
// game changed.
type WSHub struct {
	clients    map[*websocket.Conn]string
	broadcast  chan envelope
	register   chan client
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan envelope, 256),
		register:   make(chan client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every connection.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c.identity
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			slog.Info("ws client connected", "player", c.identity, "total", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn, identity := range h.clients {
				if identity != msg.identity {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
		}
	}
}

// Broadcast queues msg for every client of identity.
func (h *WSHub) Broadcast(identity string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- envelope{identity: identity, data: data}:
	default:
		// Drop if the buffer is full; the next tick sends a fresh snapshot.
	}
}

// Connected reports whether identity has at least one open client.
func (h *WSHub) Connected(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range h.clients {
		if id == identity {
			return true
		}
	}
	return false
}

// Clients is the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true // the platform gateway enforces origins
	},
}

// serveWS upgrades the request and registers the connection for identity.
// The first frame is a hello carrying the current snapshot.
func (h *WSHub) serveWS(w http.ResponseWriter, r *http.Request, sess *Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	snap := sess.Engine.Snapshot()
	hello := WSMessage{Type: MsgHello, Session: sess.ID, Snapshot: &snap}
	if sess.Resumed.Elapsed > 0 {
		report := sess.Resumed
		hello.Offline = &report
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return
	}

	select {
	case h.register <- client{conn: conn, identity: sess.Identity}:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep the connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}
