// Package hub carries session envelopes over WebSocket connections.
// Each connection gets a bounded send queue drained by its own writer goroutine,
// so the coordinator can enqueue under its lock without ever blocking.
package hub

import (
	"sync"
	"time"

	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/internal/session"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultSendQueue    = 64
	defaultPingInterval = 15 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type Options struct {
	AllowOrigins []string
	SendQueue    int
	PingInterval time.Duration
	WriteTimeout time.Duration
	Messages     session.MessageRenderer
}

// Hub is a session.Notifier backed by live WebSocket clients.
type Hub struct {
	opts  Options
	allow map[string]bool

	mu      sync.RWMutex
	coord   *session.Coordinator
	clients map[string]*client
}

func New(coord *session.Coordinator, opts Options) *Hub {
	if opts.SendQueue <= 0 {
		opts.SendQueue = defaultSendQueue
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	allow := map[string]bool{}
	for _, a := range opts.AllowOrigins {
		if a != "" {
			allow[a] = true
		}
	}
	return &Hub{coord: coord, opts: opts, allow: allow, clients: map[string]*client{}}
}

// Bind attaches the coordinator the hub dispatches to. Used when the hub itself
// is part of the coordinator's notifier chain and so must exist first.
// Connections already open stay with the coordinator they joined.
func (h *Hub) Bind(coord *session.Coordinator) {
	h.mu.Lock()
	h.coord = coord
	h.mu.Unlock()
}

func (h *Hub) coordinator() *session.Coordinator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coord
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan livedto.Envelope
	done   chan struct{}
	once   sync.Once
	joined bool // set on role-assigned; multicasts skip clients that are not yet seated
}

func (c *client) kick(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		// Close waits for the peer's close frame; never do that on the caller's goroutine.
		if c.conn != nil {
			go func() { _ = c.conn.Close(code, reason) }()
		}
	})
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Unicast enqueues env for one connection. Unknown ids are ignored.
func (h *Hub) Unicast(connID string, env livedto.Envelope) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok && env.Type == livedto.KindRoleAssigned {
		c.joined = true
	}
	h.mu.Unlock()
	if ok {
		h.enqueue(c, env)
	}
}

func (h *Hub) Multicast(env livedto.Envelope) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.joined {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, env)
	}
}

// enqueue never blocks. A full queue means the peer cannot keep up and would miss an
// authoritative position, so it is disconnected instead.
func (h *Hub) enqueue(c *client, env livedto.Envelope) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- env:
	default:
		obslog.L().Warn("hub_queue_overflow",
			zap.String("conn_id", c.id),
			zap.Int("queue", cap(c.send)),
			zap.String("type", string(env.Type)),
		)
		c.kick(websocket.StatusPolicyViolation, "send queue overflow")
	}
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client; websocket connections are hijacked and
// survive http.Server.Shutdown otherwise.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.kick(websocket.StatusGoingAway, "server shutting down")
	}
}
