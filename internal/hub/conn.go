package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/internal/session"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 4 << 10

// ServeWS upgrades the request and runs the connection until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	coord := h.coordinator()
	if coord == nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	origin := r.Header.Get("Origin")
	if len(h.allow) > 0 && origin != "" && !h.allow[origin] {
		obslog.L().Warn("hub_origin_rejected", zap.String("origin", origin))
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: len(h.allow) > 0})
	if err != nil {
		obslog.L().Warn("hub_accept_error", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan livedto.Envelope, h.opts.SendQueue),
		done: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.add(c)
	go h.writeLoop(ctx, c)

	if _, err := coord.Connect(c.id); err != nil {
		obslog.L().Error("hub_connect_error", zap.String("conn_id", c.id), zap.Error(err))
		h.remove(c.id)
		c.kick(websocket.StatusInternalError, "connect failed")
		return
	}

	h.readLoop(ctx, coord, c)

	h.remove(c.id)
	coord.Disconnect(c.id)
	c.kick(websocket.StatusNormalClosure, "bye")
}

func (h *Hub) readLoop(ctx context.Context, coord *session.Coordinator, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("hub_read_end", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		var env livedto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			obslog.L().Warn("hub_malformed_frame", zap.String("conn_id", c.id), zap.Error(err))
			h.Unicast(c.id, livedto.ErrorMessage("malformed message"))
			continue
		}
		h.dispatch(ctx, coord, c, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, coord *session.Coordinator, c *client, env livedto.Envelope) {
	switch env.Type {
	case livedto.KindMoveSubmitted:
		if env.Move == nil {
			h.Unicast(c.id, livedto.ErrorMessage("move required"))
			return
		}
		// the coordinator answers the requester itself; the error is already logged there
		_, _ = coord.SubmitMove(ctx, c.id, *env.Move)
	case livedto.KindResetRequested:
		if err := coord.Reset(c.id); err != nil {
			text := "reset failed"
			if errors.Is(err, session.ErrResetNotAllowed) {
				text = h.text("reset.denied", "reset not allowed")
			}
			h.Unicast(c.id, livedto.ErrorMessage(text))
		}
	default:
		obslog.L().Warn("hub_unknown_type", zap.String("conn_id", c.id), zap.String("type", string(env.Type)))
		h.Unicast(c.id, livedto.ErrorMessage("unsupported message type"))
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := wsjson.Write(wctx, c.conn, env)
			cancel()
			if err != nil {
				obslog.L().Debug("hub_write_error", zap.String("conn_id", c.id), zap.Error(err))
				c.kick(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("hub_ping_error", zap.String("conn_id", c.id), zap.Error(err))
				c.kick(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (h *Hub) text(key, fallback string) string {
	if h.opts.Messages == nil {
		return fallback
	}
	if s, err := h.opts.Messages.Render(key, nil); err == nil {
		return s
	}
	return fallback
}
