// Package config loads the scanner's runtime configuration with precedence
// defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/arbscan/arbscan/errs"
)

// Defaults applied before any file or environment override.
const (
	DefaultMinProfitPercent       = "0.01"
	DefaultCacheTTLSeconds        = 60
	DefaultPublishIntervalSeconds = 5
	DefaultCommissionsDir         = "config/commissions"
	DefaultListenAddr             = ":8080"
	DefaultLogLevel               = "info"
)

// Config is the full application configuration tree.
type Config struct {
	MinProfitPercent       string          `yaml:"min_profit_percent"`
	Venues                 []string        `yaml:"venues"`
	CacheTTLSeconds        int             `yaml:"cache_ttl_seconds"`
	PublishIntervalSeconds int             `yaml:"publish_interval_seconds"`
	CommissionsDir         string          `yaml:"commissions_dir"`
	ListenAddr             string          `yaml:"listen_addr"`
	LogLevel               string          `yaml:"log_level"`
	Redis                  RedisConfig     `yaml:"redis"`
	Telemetry              TelemetryConfig `yaml:"telemetry"`
}

// RedisConfig selects the shared cache backend. An empty Addr keeps the
// scanner on the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryConfig configures the OTLP metric exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path, layers environment overrides on top and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	raw, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied.
	if err != nil {
		return Config{}, errs.New("", errs.CodeInvalidConfig, errs.WithMessage("read config file"), errs.WithCause(err))
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errs.New("", errs.CodeInvalidConfig, errs.WithMessage("parse config file"), errs.WithCause(err))
	}
	return finalise(cfg)
}

// LoadOrDefault behaves like Load but treats a missing file as an empty one,
// so a bare environment still produces a runnable configuration.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return Config{}, errs.New("", errs.CodeInvalidConfig, errs.WithMessage("stat config file"), errs.WithCause(err))
		}
	}
	return finalise(Config{})
}

func finalise(cfg Config) (Config, error) {
	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.MinProfitPercent) == "" {
		c.MinProfitPercent = DefaultMinProfitPercent
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if c.PublishIntervalSeconds == 0 {
		c.PublishIntervalSeconds = DefaultPublishIntervalSeconds
	}
	if strings.TrimSpace(c.CommissionsDir) == "" {
		c.CommissionsDir = DefaultCommissionsDir
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "arbscan"
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("MIN_PROFIT_PERCENT")); v != "" {
		c.MinProfitPercent = v
	}
	if v := strings.TrimSpace(os.Getenv("VENUES")); v != "" {
		c.Venues = strings.Split(v, ",")
	}
	if v, ok := envInt("CACHE_TTL_SECONDS"); ok {
		c.CacheTTLSeconds = v
	}
	if v, ok := envInt("PUBLISH_INTERVAL_SECONDS"); ok {
		c.PublishIntervalSeconds = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("COMMISSIONS_DIR")); v != "" {
		c.CommissionsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		c.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Config) normalise() {
	c.MinProfitPercent = strings.TrimSpace(c.MinProfitPercent)
	c.CommissionsDir = strings.TrimSpace(c.CommissionsDir)
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)

	venues := make([]string, 0, len(c.Venues))
	seen := make(map[string]struct{}, len(c.Venues))
	for _, venue := range c.Venues {
		venue = strings.ToLower(strings.TrimSpace(venue))
		if venue == "" {
			continue
		}
		if _, ok := seen[venue]; ok {
			continue
		}
		seen[venue] = struct{}{}
		venues = append(venues, venue)
	}
	c.Venues = venues
}

// Validate rejects configurations the scanner cannot run with.
func (c Config) Validate() error {
	min, err := decimal.NewFromString(c.MinProfitPercent)
	if err != nil {
		return errs.New("", errs.CodeInvalidConfig,
			errs.WithMessage(fmt.Sprintf("min_profit_percent %q is not a decimal", c.MinProfitPercent)),
			errs.WithCause(err))
	}
	if min.IsNegative() {
		return errs.New("", errs.CodeInvalidConfig, errs.WithMessage("min_profit_percent must be >= 0"))
	}
	if c.CacheTTLSeconds <= 0 {
		return errs.New("", errs.CodeInvalidConfig, errs.WithMessage("cache_ttl_seconds must be > 0"))
	}
	if c.PublishIntervalSeconds <= 0 {
		return errs.New("", errs.CodeInvalidConfig, errs.WithMessage("publish_interval_seconds must be > 0"))
	}
	if c.CommissionsDir == "" {
		return errs.New("", errs.CodeInvalidConfig, errs.WithMessage("commissions_dir required"))
	}
	if c.ListenAddr == "" {
		return errs.New("", errs.CodeInvalidConfig, errs.WithMessage("listen_addr required"))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errs.New("", errs.CodeInvalidConfig,
			errs.WithMessage(fmt.Sprintf("unknown log_level %q", c.LogLevel)))
	}
	return nil
}

// MinProfit returns the profit threshold as a decimal. Validate guarantees the
// string parses.
func (c Config) MinProfit() decimal.Decimal {
	return decimal.RequireFromString(c.MinProfitPercent)
}

// TTL returns the cache freshness window.
func (c Config) TTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// PublishInterval returns the finder broadcast period.
func (c Config) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalSeconds) * time.Second
}
