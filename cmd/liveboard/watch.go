package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/cheese-liveboard/internal/config"
	"github.com/park285/cheese-liveboard/internal/feed"
	"github.com/park285/cheese-liveboard/internal/liveclient"
	"github.com/park285/cheese-liveboard/internal/msgcat"
	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	flagWatchURL  string
	flagOrigin    string
	flagFeedOnly  bool
	flagReconnect int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a live board from the terminal",
	Long: `Connect to a running board. The first two connections play; everyone else watches.

Type a move as UCI (e2e4, e7e8q), "reset" to restart the board, or "quit".
With --feed the command only follows the redis event channel and never connects
to the board itself.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchURL, "url", "", "board base URL (overrides LIVEBOARD_URL)")
	watchCmd.Flags().StringVar(&flagOrigin, "origin", "", "Origin header for the WebSocket handshake")
	watchCmd.Flags().BoolVar(&flagFeedOnly, "feed", false, "follow REDIS_URL/FEED_CHANNEL instead of connecting")
	watchCmd.Flags().IntVar(&flagReconnect, "reconnect", 5, "reconnect attempts after a dropped connection")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("url") {
		cfg.LiveboardURL = strings.TrimRight(flagWatchURL, "/")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := rules.NewChess()
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	out := cmd.OutOrStdout()

	if flagFeedOnly {
		if cfg.RedisURL == "" {
			return fmt.Errorf("--feed needs REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		return feed.Subscribe(ctx, rdb, cfg.FeedChannel, func(ev feed.Event) {
			fmt.Fprintf(out, "#%d %s", ev.Seq, ev.Type)
			if ev.Move != nil {
				fmt.Fprintf(out, " %s", ev.Move)
			}
			fmt.Fprintln(out)
			if ev.FEN != "" {
				if d, err := eng.Diagram(ev.FEN); err == nil {
					fmt.Fprint(out, d)
				}
			}
		})
	}

	cl := liveclient.NewClient(cfg.LiveboardURL)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	snap, err := cl.State(pctx)
	cancel()
	if err != nil {
		return fmt.Errorf("board unreachable: %w", err)
	}
	fmt.Fprintf(out, "board %s: %s, %d moves played\n", snap.SessionID, snap.State, snap.MoveCount)

	mirror := liveclient.NewMirror(eng)
	lastRole := livedto.Role("")
	mirror.OnChange(func(v liveclient.View) {
		if v.Role != lastRole {
			lastRole = v.Role
			fmt.Fprintln(out, cat.Text("watch.role", string(v.Role), map[string]any{"Role": v.Role}))
		}
		if v.FEN == "" {
			return
		}
		if d, err := eng.Diagram(v.FEN); err == nil {
			fmt.Fprint(out, d)
		}
		if v.Speculative {
			return
		}
		if o, err := eng.Outcome(v.FEN); err == nil && o.Terminal() {
			fmt.Fprintln(out, cat.Text("watch.concluded", "game over", map[string]any{"Result": o.Result, "Method": o.Method}))
		} else if side, err := eng.SideToMove(v.FEN); err == nil {
			fmt.Fprintln(out, cat.Text("watch.turn", string(side), map[string]any{"Side": side}))
		}
		if v.Rejected != nil && v.Rejected.Text != "" {
			fmt.Fprintln(out, v.Rejected.Text)
		}
	})

	conn := liveclient.NewConn(cl.WSURL(), flagReconnect)
	conn.SetOrigin(flagOrigin)
	conn.OnMessage(mirror.Apply)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer ccancel()
		_ = conn.Close(cctx)
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return nil
			}
			if err := handleInput(ctx, conn, mirror, line); err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}
}

func handleInput(ctx context.Context, conn *liveclient.Conn, mirror *liveclient.Mirror, line string) error {
	switch {
	case line == "":
		return nil
	case line == "reset":
		return conn.Send(ctx, livedto.ResetRequested())
	case len(line) == 4 || len(line) == 5:
		mv := livedto.MoveRequest{From: line[0:2], To: line[2:4]}
		if len(line) == 5 {
			mv.Promotion = line[4:]
		}
		env, err := mirror.Propose(mv)
		if err != nil {
			return err
		}
		return conn.Send(ctx, env)
	default:
		return fmt.Errorf("unrecognised input %q", line)
	}
}
