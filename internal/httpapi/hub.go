package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
)

const (
	hubBacklog       = 256
	writeTimeout     = 5 * time.Second
	clearWaitTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub streams progress updates to every connected websocket client
type Hub struct {
	log *logger.Manager

	mu      sync.RWMutex
	closed  bool
	updates chan model.ProgressUpdate
	done    chan struct{}

	connMu      sync.Mutex
	connections map[*websocket.Conn]struct{}
}

// NewHub creates a hub and starts its broadcast loop
func NewHub(log *logger.Manager) *Hub {
	if log == nil {
		log = logger.Default()
	}
	h := &Hub{
		log:         log,
		connections: make(map[*websocket.Conn]struct{}),
		updates:     make(chan model.ProgressUpdate, hubBacklog),
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

// Tap queues a progress value for every client. It has the shape of a
// download.ProgressTap. Progress values are dropped when the backlog is full;
// a clear waits up to clearWaitTimeout for space.
func (h *Hub) Tap(videoID string, p model.DownloadProgress, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	update := model.NewProgressUpdate(videoID, p, ok)
	if ok {
		select {
		case h.updates <- update:
		default:
			h.log.Debug().Printf("Websocket backlog full, dropped update for video %s", videoID)
		}
		return
	}

	timer := time.NewTimer(clearWaitTimeout)
	defer timer.Stop()
	select {
	case h.updates <- update:
	case <-timer.C:
		h.log.Error().Printf("Websocket backlog stalled, dropped clear for video %s", videoID)
	}
}

// HandleWebSocket upgrades the request and registers the connection until the client leaves
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Printf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.register(conn) {
		conn.Close()
		return
	}

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return len(h.connections)
}

// Close disconnects every client and stops the broadcast loop
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.updates)
	h.mu.Unlock()

	<-h.done

	h.connMu.Lock()
	for conn := range h.connections {
		conn.Close()
		delete(h.connections, conn)
	}
	h.connMu.Unlock()
}

func (h *Hub) register(conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}

	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.connections[conn] = struct{}{}
	h.log.Info().Printf("WebSocket connected: %s (total: %d)", conn.RemoteAddr(), len(h.connections))
	return true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if _, ok := h.connections[conn]; !ok {
		return
	}
	conn.Close()
	delete(h.connections, conn)
	h.log.Info().Printf("WebSocket disconnected: %s", conn.RemoteAddr())
}

func (h *Hub) run() {
	defer close(h.done)
	for update := range h.updates {
		h.broadcast(update)
	}
}

// broadcast writes under connMu, which keeps a single writer per connection
func (h *Hub) broadcast(update model.ProgressUpdate) {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	for conn := range h.connections {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(update); err != nil {
			h.log.Debug().Printf("WebSocket write to %s failed: %v", conn.RemoteAddr(), err)
			conn.Close()
			delete(h.connections, conn)
		}
	}
}
