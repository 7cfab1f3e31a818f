// Package ws serves the publish-event feed: admin dashboards connect over
// WebSocket and receive a JSON event for every version or package publish.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/shared/types"
)

// Event is one feed message.
type Event struct {
	Type      string                   `json:"type"`
	AppID     string                   `json:"app_id"`
	Version   *types.VersionInfo       `json:"version,omitempty"`
	Package   *types.UpdatePackageInfo `json:"package,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only status data; origin policy is left to the CORS
	// layer in front of the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans publish events out to connected clients. Slow clients are
// dropped rather than allowed to block the publish path.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHub creates an event hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan Event),
		logger:  logger,
	}
}

// WithMetrics adds connection tracking.
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// VersionPublished implements the registry's event sink.
func (h *Hub) VersionPublished(v types.VersionInfo) {
	h.broadcast(Event{
		Type:      "version_published",
		AppID:     v.AppID,
		Version:   &v,
		Timestamp: time.Now().UTC(),
	})
}

// PackagePublished implements the catalog's event sink.
func (h *Hub) PackagePublished(p types.UpdatePackageInfo) {
	h.broadcast(Event{
		Type:      "package_published",
		AppID:     p.AppID,
		Package:   &p,
		Timestamp: time.Now().UTC(),
	})
}

// HandleConnection upgrades a request and streams events until the client
// disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("event feed upgrade failed", zap.Error(err))
		return
	}

	events := make(chan Event, 16)
	h.mu.Lock()
	h.clients[conn] = events
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	h.logger.Debug("event feed client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Reader goroutine: the feed is one-way, but reads surface disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.drop(conn)
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, events := range h.clients {
		select {
		case events <- event:
		default:
			// Full buffer means a stalled client; close and let its
			// handler clean up.
			h.logger.Warn("dropping stalled event feed client",
				zap.String("remote", conn.RemoteAddr().String()),
			)
			conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	}
	h.mu.Unlock()
}
