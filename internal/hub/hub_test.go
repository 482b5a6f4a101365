package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/internal/session"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestServer(t *testing.T, opts Options) (*Hub, *session.Coordinator, *httptest.Server) {
	t.Helper()
	h := New(nil, opts)
	coord, err := session.NewCoordinator(session.DefaultSessionID, rules.NewChess(), h, session.DefaultOptions())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	h.Bind(coord)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return h, coord, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func read(t *testing.T, c *websocket.Conn) livedto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var env livedto.Envelope
	if err := wsjson.Read(ctx, c, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func write(t *testing.T, c *websocket.Conn, env livedto.Envelope) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLiveGameOverWebSocket(t *testing.T) {
	_, coord, srv := newTestServer(t, Options{})

	a := dial(t, srv)
	if env := read(t, a); env.Type != livedto.KindRoleAssigned || env.Role != livedto.FirstPlayer {
		t.Fatalf("a role: %+v", env)
	}
	if env := read(t, a); env.Type != livedto.KindPositionSync || env.FEN != rules.StartFEN {
		t.Fatalf("a sync: %+v", env)
	}

	b := dial(t, srv)
	if env := read(t, b); env.Role != livedto.SecondPlayer {
		t.Fatalf("b role: %+v", env)
	}
	read(t, b)

	s := dial(t, srv)
	if env := read(t, s); env.Role != livedto.Spectator {
		t.Fatalf("s role: %+v", env)
	}
	read(t, s)

	write(t, a, livedto.MoveSubmitted(livedto.MoveRequest{From: "e2", To: "e4"}))
	for name, c := range map[string]*websocket.Conn{"a": a, "b": b, "s": s} {
		if env := read(t, c); env.Type != livedto.KindMoveBroadcast || env.Move == nil || env.Move.To != "e4" {
			t.Fatalf("%s broadcast: %+v", name, env)
		}
		if env := read(t, c); env.Type != livedto.KindPositionSync || env.FEN != coord.Position() {
			t.Fatalf("%s sync: %+v", name, env)
		}
	}

	// spectator move is refused to the spectator only
	write(t, s, livedto.MoveSubmitted(livedto.MoveRequest{From: "e7", To: "e5"}))
	if env := read(t, s); env.Type != livedto.KindMoveRejected || env.Reason != livedto.ReasonOutOfTurn {
		t.Fatalf("spectator rejection: %+v", env)
	}
	read(t, s)

	write(t, s, livedto.ResetRequested())
	for name, c := range map[string]*websocket.Conn{"a": a, "b": b, "s": s} {
		if env := read(t, c); env.Type != livedto.KindResetBroadcast || env.FEN != rules.StartFEN {
			t.Fatalf("%s reset: %+v", name, env)
		}
		read(t, c)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	_, _, srv := newTestServer(t, Options{})
	a := dial(t, srv)
	read(t, a)
	read(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := read(t, a); env.Type != livedto.KindError || env.Text == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
	write(t, a, livedto.Envelope{Type: "bogus"})
	if env := read(t, a); env.Type != livedto.KindError {
		t.Fatalf("unknown type: %+v", env)
	}
	write(t, a, livedto.Envelope{Type: livedto.KindMoveSubmitted})
	if env := read(t, a); env.Type != livedto.KindError {
		t.Fatalf("missing move: %+v", env)
	}

	// still usable
	write(t, a, livedto.MoveSubmitted(livedto.MoveRequest{From: "e2", To: "e4"}))
	if env := read(t, a); env.Type != livedto.KindMoveBroadcast {
		t.Fatalf("move after errors: %+v", env)
	}
}

func TestDisconnectFreesSeat(t *testing.T) {
	h, coord, srv := newTestServer(t, Options{})
	a := dial(t, srv)
	read(t, a)
	read(t, a)
	_ = a.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(5 * time.Second)
	for h.Count() != 0 || coord.Snapshot().FirstPlayer != "" {
		if time.Now().After(deadline) {
			t.Fatalf("seat not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
	d := dial(t, srv)
	if env := read(t, d); env.Role != livedto.FirstPlayer {
		t.Fatalf("d role: %+v", env)
	}
}

func TestOriginAllowlist(t *testing.T) {
	_, _, srv := newTestServer(t, Options{AllowOrigins: []string{"http://good.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: http.Header{"Origin": {"http://evil.example"}}})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: http.Header{"Origin": {"http://good.example"}}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func TestHealthAndState(t *testing.T) {
	_, _, srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}

	a := dial(t, srv)
	read(t, a)
	read(t, a)

	resp, err = http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	var snap livedto.StateSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.FEN != rules.StartFEN || !snap.FirstPlayerTaken || snap.SecondPlayerTaken || snap.State != string(session.StateWaiting) {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestQueueOverflowKicksClient(t *testing.T) {
	h := New(nil, Options{SendQueue: 1})
	c := &client{id: "slow", send: make(chan livedto.Envelope, 1), done: make(chan struct{})}
	h.add(c)
	h.Unicast("slow", livedto.RoleAssigned(livedto.Spectator))
	h.Multicast(livedto.PositionSync(rules.StartFEN))

	select {
	case <-c.done:
	default:
		t.Fatalf("client not kicked on overflow")
	}
	// later sends are dropped silently
	h.Multicast(livedto.PositionSync(rules.StartFEN))
	if len(c.send) != 1 {
		t.Fatalf("queue len = %d", len(c.send))
	}
}

func TestMulticastSkipsUnseated(t *testing.T) {
	h := New(nil, Options{})
	c := &client{id: "new", send: make(chan livedto.Envelope, 4), done: make(chan struct{})}
	h.add(c)
	h.Multicast(livedto.PositionSync(rules.StartFEN))
	if len(c.send) != 0 {
		t.Fatalf("unseated client received multicast")
	}
	h.Unicast("new", livedto.RoleAssigned(livedto.Spectator))
	h.Multicast(livedto.PositionSync(rules.StartFEN))
	if len(c.send) != 2 {
		t.Fatalf("queue len = %d", len(c.send))
	}
}

func TestBindWhileServing(t *testing.T) {
	h := New(nil, Options{})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unbound status = %d", resp.StatusCode)
	}

	coord, err := session.NewCoordinator(session.DefaultSessionID, rules.NewChess(), h, session.DefaultOptions())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	go h.Bind(coord)

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/state")
		if err != nil {
			t.Fatalf("GET /state: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never became available, last status %d", resp.StatusCode)
		}
		time.Sleep(10 * time.Millisecond)
	}
	c := dial(t, srv)
	if env := read(t, c); env.Type != livedto.KindRoleAssigned || env.Role != livedto.FirstPlayer {
		t.Fatalf("first message: %+v", env)
	}
}
