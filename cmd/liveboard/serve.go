package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/cheese-liveboard/internal/archive"
	"github.com/park285/cheese-liveboard/internal/config"
	"github.com/park285/cheese-liveboard/internal/feed"
	"github.com/park285/cheese-liveboard/internal/hub"
	"github.com/park285/cheese-liveboard/internal/msgcat"
	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagListen      string
	flagResetPolicy string
	flagNoGate      bool
	flagServeDB     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live board server",
	Long: `Run the board server.

Optional backends:
  REDIS_URL     mirror the latest position and publish events on FEED_CHANNEL
  DATABASE_URL  archive finished games (postgres:// or a sqlite file path)`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&flagResetPolicy, "reset-policy", "", "who may reset: anyone|players (overrides RESET_POLICY)")
	serveCmd.Flags().BoolVar(&flagNoGate, "no-gate", false, "accept moves after the game has concluded")
	serveCmd.Flags().StringVar(&flagServeDB, "db", "", "archive database (overrides DATABASE_URL)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = flagListen
	}
	if cmd.Flags().Changed("reset-policy") {
		cfg.ResetPolicy = flagResetPolicy
	}
	if flagNoGate {
		cfg.GateConcluded = false
	}
	if cmd.Flags().Changed("db") {
		cfg.DatabaseURL = flagServeDB
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}

	h := hub.New(nil, hub.Options{
		AllowOrigins: cfg.AllowOrigins,
		SendQueue:    cfg.SendQueue,
		PingInterval: cfg.PingInterval,
		Messages:     cat,
	})
	notifiers := session.Fanout{h}

	if cfg.RedisURL != "" {
		fd, err := feed.Open(ctx, cfg.RedisURL, cfg.FeedChannel, session.DefaultSessionID)
		if err != nil {
			return fmt.Errorf("feed init: %w", err)
		}
		defer fd.Close()
		notifiers = append(notifiers, fd)
	}

	coord, err := session.NewCoordinator(session.DefaultSessionID, rules.NewChess(), notifiers, session.Options{
		GateConcluded: cfg.GateConcluded,
		ResetPolicy:   session.ParseResetPolicy(cfg.ResetPolicy),
		Messages:      cat,
	})
	if err != nil {
		return err
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		defer repo.Close()
		coord.AttachResultSink(repo)
	}

	reg := session.NewRegistry()
	if err := reg.Register(coord); err != nil {
		return err
	}
	live, _ := reg.Default()
	h.Bind(live)

	obslog.L().Info("liveboard_start",
		zap.String("listen", cfg.ListenAddr),
		zap.Bool("feed", cfg.RedisURL != ""),
		zap.Bool("archive", cfg.DatabaseURL != ""),
		zap.Bool("gate_concluded", cfg.GateConcluded),
		zap.String("reset_policy", cfg.ResetPolicy),
	)
	if err := h.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		return err
	}
	obslog.L().Info("liveboard_stop")
	return nil
}
