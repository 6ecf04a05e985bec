package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 5 * time.Second
	idLength      = 8
)

// Conn is the transport held for one client. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	id   string
	conn Conn
	// gorilla connections allow one concurrent writer; writeMu also keeps
	// each message whole on the wire.
	writeMu sync.Mutex
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Registry tracks live connections by id and delivers events to all or one of them.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	metrics  *metrics.WebSocketMetrics
	newID    func() string
}

// NewRegistry builds an empty registry. allowedOrigins restricts the
// handshake's Origin header; an empty list or "*" accepts any origin.
// wsMetrics may be nil.
func NewRegistry(allowedOrigins []string, wsMetrics *metrics.WebSocketMetrics) *Registry {
	return &Registry{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		metrics: wsMetrics,
		newID:   shortID,
	}
}

func shortID() string {
	return uuid.NewString()[:idLength]
}

// Accept performs the WebSocket handshake and registers the connection. On a
// failed handshake nothing is registered and the upgrader has already written
// an HTTP error response.
func (r *Registry) Accept(w http.ResponseWriter, req *http.Request) (string, *websocket.Conn, error) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return "", nil, fmt.Errorf("websocket handshake: %w", err)
	}
	return r.Register(conn), conn, nil
}

// Register stores an accepted connection under a fresh id, unique among the
// currently live connections, and returns that id.
func (r *Registry) Register(conn Conn) string {
	r.mu.Lock()
	id := r.newID()
	for {
		if _, taken := r.clients[id]; !taken {
			break
		}
		id = r.newID()
	}
	r.clients[id] = &client{id: id, conn: conn}
	total := len(r.clients)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}
	slog.Info("Client connected", "client_id", id, "total", total)
	return id
}

// Disconnect removes and closes the connection. Unknown ids are a no-op.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	remaining := len(r.clients)
	r.mu.Unlock()

	if ok {
		r.release(c, remaining)
	}
}

// remove drops c only if it still owns its id; a later holder of a reused id
// is left alone.
func (r *Registry) remove(c *client) {
	r.mu.Lock()
	current, ok := r.clients[c.id]
	owned := ok && current == c
	if owned {
		delete(r.clients, c.id)
	}
	remaining := len(r.clients)
	r.mu.Unlock()

	if owned {
		r.release(c, remaining)
	}
}

func (r *Registry) release(c *client, remaining int) {
	_ = c.conn.Close()
	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
	}
	slog.Info("Client disconnected", "client_id", c.id, "remaining", remaining)
}

// Broadcast delivers evt to every registered connection except excludeID.
// Sends run concurrently, so a stalled client delays the call by at most one
// write deadline and never delays the others. A failed send is logged and
// that connection is removed after the pass; the remaining connections still
// receive the event.
func (r *Registry) Broadcast(evt dom.Event, excludeID string) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "type", evt.Type, "error", err)
		return
	}

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []*client
	)
	for _, c := range r.snapshot() {
		if c.id == excludeID {
			continue
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := c.send(data); err != nil {
				slog.Warn("Failed to send to client", "client_id", c.id, "type", evt.Type, "error", err)
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
				return
			}
			r.sent()
		}(c)
	}
	wg.Wait()

	for _, c := range failed {
		r.failure()
		r.remove(c)
	}
}

// SendTo delivers evt to a single connection. It reports whether the event
// was delivered; an unknown id is a no-op and a failed send disconnects.
func (r *Registry) SendTo(evt dom.Event, id string) bool {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to marshal event", "type", evt.Type, "error", err)
		return false
	}
	if err := c.send(data); err != nil {
		slog.Warn("Failed to send to client", "client_id", id, "type", evt.Type, "error", err)
		r.failure()
		r.remove(c)
		return false
	}
	r.sent()
	return true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close disconnects every client.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*client)
	r.mu.Unlock()

	for _, c := range clients {
		r.release(c, 0)
	}
}

func (r *Registry) snapshot() []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) sent() {
	if r.metrics != nil {
		r.metrics.MessagesSent.Inc()
	}
}

func (r *Registry) failure() {
	if r.metrics != nil {
		r.metrics.SendFailures.Inc()
	}
}
