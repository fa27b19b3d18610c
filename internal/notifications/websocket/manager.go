package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/notifications"
)

// Manager handles WebSocket connections and per-user message routing. It is
// injected wherever realtime delivery is needed; there is no process-wide
// singleton.
type Manager struct {
	mu          sync.RWMutex
	connections map[string][]*Connection
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a WebSocket client connection
type Connection struct {
	UserID       string
	Conn         *websocket.Conn
	Send         chan notifications.Message
	LastActivity time.Time
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[string][]*Connection),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades an HTTP request and registers the connection
// under the given user.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan notifications.Message, 256),
		LastActivity: time.Now(),
	}

	m.mu.Lock()
	m.connections[userID] = append(m.connections[userID], connection)
	m.mu.Unlock()

	go m.writePump(connection)
	go m.readPump(connection)

	return connection, nil
}

// SendToUser pushes a message to every open connection of the user.
func (m *Manager) SendToUser(userID string, msg notifications.Message) error {
	m.mu.RLock()
	conns := m.connections[userID]
	m.mu.RUnlock()

	if len(conns) == 0 {
		return fmt.Errorf("user %s has no open connections", userID)
	}
	for _, c := range conns {
		select {
		case c.Send <- msg:
		default:
			// slow consumer, drop rather than block the caller
			m.logger.Warn("dropping websocket message", zap.String("user_id", userID))
		}
	}
	return nil
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(45 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		conn.LastActivity = time.Now()
	}
}

func (m *Manager) unregister(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := m.connections[conn.UserID]
	for i, c := range conns {
		if c == conn {
			m.connections[conn.UserID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(m.connections[conn.UserID]) == 0 {
		delete(m.connections, conn.UserID)
	}
	close(conn.Send)
}
