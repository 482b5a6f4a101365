package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "ORIGIN_ALLOWLIST", "REDIS_URL", "FEED_CHANNEL", "DATABASE_URL",
		"GATE_CONCLUDED", "RESET_POLICY", "SEND_QUEUE", "PING_INTERVAL_SEC", "MESSAGES_DIR", "LIVEBOARD_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":3000" || !cfg.GateConcluded || cfg.ResetPolicy != "anyone" || cfg.SendQueue != 64 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.PingInterval != 15*time.Second || cfg.FeedChannel != "liveboard:events" || len(cfg.AllowOrigins) != 0 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("ORIGIN_ALLOWLIST", " http://a.example, ,http://b.example ")
	t.Setenv("GATE_CONCLUDED", "false")
	t.Setenv("RESET_POLICY", "Players")
	t.Setenv("SEND_QUEUE", "8")
	t.Setenv("PING_INTERVAL_SEC", "3")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LIVEBOARD_URL", "http://board:3000/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.GateConcluded || cfg.ResetPolicy != "players" || cfg.SendQueue != 8 {
		t.Fatalf("overrides: %+v", cfg)
	}
	if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "http://b.example" {
		t.Fatalf("origins: %v", cfg.AllowOrigins)
	}
	if cfg.PingInterval != 3*time.Second || cfg.LiveboardURL != "http://board:3000" {
		t.Fatalf("overrides: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"RESET_POLICY":      "admins",
		"GATE_CONCLUDED":    "maybe",
		"SEND_QUEUE":        "0",
		"PING_INTERVAL_SEC": "x",
		"REDIS_URL":         "http://localhost",
	} {
		clearEnv(t)
		t.Setenv(k, v)
		if _, err := Load(); err == nil {
			t.Fatalf("%s=%s: expected error", k, v)
		}
	}
}
