package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arbscan/arbscan/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.MinProfitPercent != "0.01" {
		t.Fatalf("MinProfitPercent = %q", cfg.MinProfitPercent)
	}
	if cfg.TTL() != 60*time.Second {
		t.Fatalf("TTL = %v", cfg.TTL())
	}
	if cfg.PublishInterval() != 5*time.Second {
		t.Fatalf("PublishInterval = %v", cfg.PublishInterval())
	}
	if cfg.CommissionsDir != "config/commissions" {
		t.Fatalf("CommissionsDir = %q", cfg.CommissionsDir)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if len(cfg.Venues) != 0 {
		t.Fatalf("Venues = %v, want empty (all registered)", cfg.Venues)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
min_profit_percent: "0.5"
venues: [Binance, BYBIT, binance]
cache_ttl_seconds: 30
publish_interval_seconds: 2
listen_addr: ":9090"
log_level: DEBUG
redis:
  addr: "localhost:6379"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinProfit().String() != "0.5" {
		t.Fatalf("MinProfit = %s", cfg.MinProfit())
	}
	if got := cfg.Venues; len(got) != 2 || got[0] != "binance" || got[1] != "bybit" {
		t.Fatalf("Venues = %v, want deduplicated lower-case", got)
	}
	if cfg.TTL() != 30*time.Second {
		t.Fatalf("TTL = %v", cfg.TTL())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `min_profit_percent: "0.5"`)
	t.Setenv("MIN_PROFIT_PERCENT", "1.25")
	t.Setenv("VENUES", "gate, mexc")
	t.Setenv("CACHE_TTL_SECONDS", "10")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinProfitPercent != "1.25" {
		t.Fatalf("MinProfitPercent = %q", cfg.MinProfitPercent)
	}
	if got := cfg.Venues; len(got) != 2 || got[0] != "gate" || got[1] != "mexc" {
		t.Fatalf("Venues = %v", got)
	}
	if cfg.CacheTTLSeconds != 10 {
		t.Fatalf("CacheTTLSeconds = %d", cfg.CacheTTLSeconds)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-decimal threshold", func(c *Config) { c.MinProfitPercent = "one percent" }},
		{"negative threshold", func(c *Config) { c.MinProfitPercent = "-0.1" }},
		{"zero ttl", func(c *Config) { c.CacheTTLSeconds = -1 }},
		{"zero interval", func(c *Config) { c.PublishIntervalSeconds = -5 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var e *errs.E
			if !errors.As(err, &e) || e.Code != errs.CodeInvalidConfig {
				t.Fatalf("code = %v, want invalid_config", errs.CodeOf(err))
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errs.CodeOf(err) != errs.CodeInvalidConfig {
		t.Fatalf("err = %v, want invalid_config", err)
	}
}

func TestLoadOrDefaultIgnoresMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
}
