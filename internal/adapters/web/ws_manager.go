package web

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin requests carry no Origin header.
		return r.Header.Get("Origin") == "" || r.Host == hostOf(r.Header.Get("Origin"))
	},
}

func hostOf(origin string) string {
	for i := 0; i < len(origin)-2; i++ {
		if origin[i] == ':' && origin[i+1] == '/' && origin[i+2] == '/' {
			return origin[i+3:]
		}
	}
	return origin
}

// WSMessage is the envelope pushed to dashboard clients.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WSManager fans flagged analyses out to connected organiser dashboards.
type WSManager struct {
	clients   map[*websocket.Conn]struct{}
	broadcast chan WSMessage
	mu        sync.Mutex
}

func NewWSManager() *WSManager {
	return &WSManager{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan WSMessage, 64),
	}
}

// Start runs the broadcast pump until the context is cancelled.
func (m *WSManager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				m.closeAll()
				return
			case msg := <-m.broadcast:
				m.send(msg)
			}
		}
	}()
}

// BroadcastAnalysis queues a flagged analysis for delivery. Drops when the
// buffer is full; the feed is advisory, the record store is authoritative.
func (m *WSManager) BroadcastAnalysis(analysis domain.Analysis) {
	select {
	case m.broadcast <- WSMessage{Type: "analysis.flagged", Payload: analysis}:
	default:
	}
}

// HandleWebSocket upgrades a dashboard connection.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	// Reader loop only detects disconnects; clients never send.
	go func() {
		defer m.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *WSManager) send(msg WSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

func (m *WSManager) drop(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.Close()
	delete(m.clients, conn)
}

func (m *WSManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.Close()
		delete(m.clients, conn)
	}
}
