package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// Message types
const (
	TypeQueryStage  = "query.stage"
	TypeSourceState = "source.state"
)

const writeWait = 5 * time.Second

// WSMessage is the envelope of every frame sent to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SourceStatePayload is sent for every source fetch outcome.
type SourceStatePayload struct {
	Source domain.Source     `json:"source"`
	State  domain.FetchState `json:"state"`
}

// WSManager streams pipeline events to connected clients. It implements
// ports.StageObserver and the source state listener.
type WSManager struct {
	upgrader gws.Upgrader
	allowed  map[string]bool
	clients  map[*gws.Conn]struct{}
	mu       sync.Mutex
}

// NewWSManager accepts connections from the given origins. Requests without
// an Origin header are always accepted.
func NewWSManager(allowedOrigins []string) *WSManager {
	m := &WSManager{
		allowed: make(map[string]bool, len(allowedOrigins)),
		clients: make(map[*gws.Conn]struct{}),
	}
	for _, o := range allowedOrigins {
		m.allowed[o] = true
	}
	m.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

func (m *WSManager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || m.allowed[origin] {
		return true
	}
	log.Printf("WebSocket: Rejected origin: %s", origin)
	return false
}

// HandleWebSocket upgrades the request and keeps the client until it disconnects.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer m.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *WSManager) drop(conn *gws.Conn) {
	m.mu.Lock()
	delete(m.clients, conn)
	m.mu.Unlock()
	conn.Close()
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// OnStage broadcasts one query lifecycle event.
func (m *WSManager) OnStage(_ context.Context, ev domain.StageEvent) {
	m.broadcastMessage(WSMessage{Type: TypeQueryStage, Payload: ev})
}

// OnSourceState broadcasts one source fetch outcome.
func (m *WSManager) OnSourceState(source domain.Source, state domain.FetchState) {
	m.broadcastMessage(WSMessage{Type: TypeSourceState, Payload: SourceStatePayload{Source: source, State: state}})
}

// Close disconnects every client.
func (m *WSManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseGoingAway, ""), time.Now().Add(time.Second))
		conn.Close()
		delete(m.clients, conn)
	}
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(gws.TextMessage, data); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}
