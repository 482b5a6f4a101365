package liveclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Conn is a reconnecting live-board socket. Every reconnect is a new connection
// to the server and therefore a fresh role assignment.
type Conn struct {
	url    string
	header http.Header

	mu    sync.RWMutex
	conn  *websocket.Conn
	state State

	cbM       sync.RWMutex
	onMessage func(livedto.Envelope)
	onState   func(State)

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewConn(url string, maxReconnectAttempts int) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		url:                  url,
		header:               http.Header{},
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         15 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

// SetOrigin sets the Origin header sent on the handshake.
func (c *Conn) SetOrigin(origin string) {
	if origin != "" {
		c.header.Set("Origin", origin)
	}
}

func (c *Conn) OnMessage(fn func(livedto.Envelope)) {
	c.cbM.Lock()
	c.onMessage = fn
	c.cbM.Unlock()
}

func (c *Conn) OnStateChange(fn func(State)) {
	c.cbM.Lock()
	c.onState = fn
	c.cbM.Unlock()
}

func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) Connect(ctx context.Context) error {
	if st := c.State(); st == StateConnected || st == StateConnecting {
		return nil
	}
	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	return nil
}

func (c *Conn) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.isStopping() {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		return ErrClosed
	}
	c.conn = conn
	c.wg.Add(2)
	c.mu.Unlock()
	c.setState(StateConnected)

	go c.listen(conn)
	go c.pingLoop(conn)
	return nil
}

func (c *Conn) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var env livedto.Envelope
		if err := wsjson.Read(c.rootCtx, conn, &env); err != nil {
			if c.isStopping() {
				return
			}
			obslog.L().Warn("liveclient_read_error", zap.Error(err))
			c.drop(conn, websocket.StatusGoingAway, "reconnect")
			c.scheduleReconnect()
			return
		}
		c.cbM.RLock()
		cb := c.onMessage
		c.cbM.RUnlock()
		if cb != nil {
			cb(env)
		}
	}
}

func (c *Conn) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if c.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// closing makes listen fail, which owns the reconnect
				c.drop(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Conn) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 || !c.track(1) {
		c.setState(StateDisconnected)
		return
	}
	c.setState(StateReconnecting)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			if err := c.dial(c.rootCtx); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				obslog.L().Debug("liveclient_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			obslog.L().Info("liveclient_reconnected", zap.Int("attempt", attempt))
			return
		}
		c.setState(StateFailed)
	}()
}

// Send writes one envelope to the server.
func (c *Conn) Send(ctx context.Context, env livedto.Envelope) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, env)
}

func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Unlock()
	if conn := c.current(); conn != nil {
		c.drop(conn, websocket.StatusNormalClosure, "close")
	}
	c.rootCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Conn) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Conn) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close(code, reason)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.cbM.RLock()
	cb := c.onState
	c.cbM.RUnlock()
	if cb != nil {
		cb(s)
	}
}

// track registers n goroutines with the wait group unless Close has begun.
// Close flips stopCh under mu, so no Add can race its Wait.
func (c *Conn) track(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStopping() {
		return false
	}
	c.wg.Add(n)
	return true
}

func (c *Conn) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
