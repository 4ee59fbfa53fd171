package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser extension connects from a chrome-extension:// origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const maxMessageSize = 64 << 10

// ScanFunc scores one URL and returns the payload sent back to the client.
type ScanFunc func(ctx context.Context, url string) any

// RateLimiter charges one scan against the caller's budget. *ratelimit.Limiter
// satisfies it.
type RateLimiter interface {
	AllowRequest(r *http.Request, bucket string) (bool, time.Duration)
}

type scanRequest struct {
	URL string `json:"url"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) writeJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Manager serves the extension scan socket and tracks open connections so
// alerts can be broadcast to every extension.
type Manager struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	scan    ScanFunc
	limiter RateLimiter
	bucket  string
	logger  *slog.Logger
}

// NewManager returns a socket manager. When limiter is non-nil every scan
// message is charged against bucket for the connecting IP.
func NewManager(scan ScanFunc, limiter RateLimiter, bucket string, logger *slog.Logger) *Manager {
	return &Manager{
		clients: make(map[*client]struct{}),
		scan:    scan,
		limiter: limiter,
		bucket:  bucket,
		logger:  logger,
	}
}

// HandleScan upgrades the connection. Each {"url": ...} message is answered
// with one scan payload.
func (m *Manager) HandleScan(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.clients, c)
		m.mu.Unlock()
		conn.Close()
	}()

	c.writeJSON(map[string]any{"type": "ready", "timestamp": time.Now().Format(time.RFC3339)})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Debug("websocket closed", "err", err)
			}
			return
		}

		var req scanRequest
		if err := json.Unmarshal(data, &req); err != nil || req.URL == "" {
			if err := c.writeJSON(map[string]string{"error": "No URL provided"}); err != nil {
				return
			}
			continue
		}
		if m.limiter != nil {
			if ok, retry := m.limiter.AllowRequest(r, m.bucket); !ok {
				reply := map[string]any{"error": "Rate limited", "retry_after_seconds": int(retry.Seconds())}
				if err := c.writeJSON(reply); err != nil {
					return
				}
				continue
			}
		}
		if err := c.writeJSON(m.scan(r.Context(), req.URL)); err != nil {
			return
		}
	}
}

// Broadcast sends data to every connected client.
func (m *Manager) Broadcast(data any) {
	m.mu.RLock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(data); err != nil {
			m.logger.Debug("websocket broadcast failed", "err", err)
			c.conn.Close()
		}
	}
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
