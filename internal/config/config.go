package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr   string
	AllowOrigins []string

	RedisURL    string
	FeedChannel string
	DatabaseURL string

	GateConcluded bool
	ResetPolicy   string

	SendQueue    int
	PingInterval time.Duration

	MessagesDir  string
	LiveboardURL string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":3000",
		FeedChannel:   "liveboard:events",
		GateConcluded: true,
		ResetPolicy:   "anyone",
		SendQueue:     64,
		PingInterval:  15 * time.Second,
		LiveboardURL:  "http://localhost:3000",
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowOrigins = splitList(os.Getenv("ORIGIN_ALLOWLIST"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("FEED_CHANNEL")); v != "" {
		cfg.FeedChannel = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("GATE_CONCLUDED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GATE_CONCLUDED: %w", err)
		}
		cfg.GateConcluded = b
	}
	if v := strings.TrimSpace(os.Getenv("RESET_POLICY")); v != "" {
		cfg.ResetPolicy = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("SEND_QUEUE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SEND_QUEUE: %w", err)
		}
		cfg.SendQueue = n
	}
	if v := strings.TrimSpace(os.Getenv("PING_INTERVAL_SEC")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PING_INTERVAL_SEC: %w", err)
		}
		cfg.PingInterval = time.Duration(n) * time.Second
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("LIVEBOARD_URL")); v != "" {
		cfg.LiveboardURL = strings.TrimRight(v, "/")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate is also run after command-line overrides are applied.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	switch c.ResetPolicy {
	case "anyone", "players":
	default:
		return fmt.Errorf("RESET_POLICY must be anyone or players, got %q", c.ResetPolicy)
	}
	if c.SendQueue <= 0 {
		return errors.New("SEND_QUEUE must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.New("PING_INTERVAL_SEC must be positive")
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("REDIS_URL must use redis:// or rediss://")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
