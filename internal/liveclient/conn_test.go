package liveclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/park285/cheese-liveboard/internal/hub"
	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/internal/session"
	"github.com/park285/cheese-liveboard/pkg/livedto"
)

func startBoard(t *testing.T) (*session.Coordinator, *Client) {
	t.Helper()
	h := hub.New(nil, hub.Options{})
	coord, err := session.NewCoordinator(session.DefaultSessionID, rules.NewChess(), h, session.DefaultOptions())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	h.Bind(coord)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return coord, NewClient(srv.URL)
}

// attach wires a mirror to a live socket and returns a channel of views.
func attach(t *testing.T, cl *Client) (*Conn, *Mirror, <-chan View) {
	t.Helper()
	m := NewMirror(rules.NewChess())
	views := make(chan View, 32)
	m.OnChange(func(v View) { views <- v })
	c := NewConn(cl.WSURL(), 0)
	c.OnMessage(m.Apply)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		_ = c.Close(cctx)
	})
	return c, m, views
}

func waitFor(t *testing.T, views <-chan View, ok func(View) bool) View {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-views:
			if ok(v) {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for view")
			return View{}
		}
	}
}

func TestTwoClientsPlayThroughServer(t *testing.T) {
	coord, cl := startBoard(t)

	wc, wm, wviews := attach(t, cl)
	waitFor(t, wviews, func(v View) bool { return v.Role == livedto.FirstPlayer && v.FEN != "" })
	_, _, bviews := attach(t, cl)
	waitFor(t, bviews, func(v View) bool { return v.Role == livedto.SecondPlayer && v.FEN != "" })

	env, err := wm.Propose(livedto.MoveRequest{From: "e2", To: "e4", Promotion: "q"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := wc.Send(context.Background(), env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := func(v View) bool { return !v.Speculative && v.FEN != rules.StartFEN && v.FEN == coord.Position() }
	waitFor(t, wviews, want)
	bv := waitFor(t, bviews, want)
	if side, _ := rules.NewChess().SideToMove(bv.FEN); side != livedto.SecondPlayer {
		t.Fatalf("black should be to move, got %s", side)
	}

	snap, err := cl.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.State != string(session.StateInProgress) || snap.MoveCount != 1 || snap.SideToMove != livedto.SecondPlayer {
		t.Fatalf("snapshot: %+v", snap)
	}
	if err := cl.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", 0)
	if err := c.Send(context.Background(), livedto.ResetRequested()); err != ErrNotConnected {
		t.Fatalf("err = %v", err)
	}
}

func TestCloseDuringReconnect(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", 5)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if st := c.State(); st != StateReconnecting {
		t.Fatalf("state = %s", st)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := c.State(); st != StateDisconnected {
		t.Fatalf("state after close = %s", st)
	}
	// once closed, a failed dial schedules nothing
	_ = c.Connect(context.Background())
	if st := c.State(); st != StateDisconnected {
		t.Fatalf("state after closed connect = %s", st)
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000":  "ws://localhost:3000/ws",
		"https://board.example/": "wss://board.example/ws",
	}
	for in, want := range cases {
		if got := NewClient(in).WSURL(); got != want {
			t.Fatalf("WSURL(%q) = %q, want %q", in, got, want)
		}
	}
}
