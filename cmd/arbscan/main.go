// Command arbscan launches the arbitrage scanner: venue ingestion, the
// market cache, both finders, the publisher loop and the HTTP/WS API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/arbscan/arbscan/internal/arb"
	"github.com/arbscan/arbscan/internal/commission"
	"github.com/arbscan/arbscan/internal/config"
	"github.com/arbscan/arbscan/internal/ingest"
	"github.com/arbscan/arbscan/internal/marketcache"
	"github.com/arbscan/arbscan/internal/publish"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/server"
	"github.com/arbscan/arbscan/internal/telemetry"
	"github.com/arbscan/arbscan/internal/venue"
	"github.com/arbscan/arbscan/internal/venue/builtin"
)

const (
	defaultConfigPath        = "config/app.yaml"
	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	ingestShutdownTimeout    = 15 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	readHeaderTimeout        = 5 * time.Second
)

func main() {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *cfgPath
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("config", path).Msg("configuration loaded")

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise telemetry")
	}

	raw, err := commission.LoadDir(cfg.CommissionsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.CommissionsDir).Msg("load commission tables")
	}
	fees := commission.NewTable(raw, logger)
	logger.Info().Int("venues", len(fees.Venues())).Msg("commission tables loaded")

	cache, redisClient := newCache(cfg, logger)

	registry := venue.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		logger.Fatal().Err(err).Msg("register venue adapters")
	}

	venues := scanVenues(cfg, registry)
	supervisor := ingest.New(registry, fees, cache, ingest.Config{Venues: venues}, logger)
	if err := supervisor.Start(ctx); err != nil {
		// The finders keep serving cached (possibly stale) data; operators
		// can restart once the cache backend recovers.
		logger.Error().Err(err).Msg("ingestion did not start")
	}

	finderCfg := arb.Config{MinProfitPercent: cfg.MinProfit(), Venues: venues}
	spatial := arb.NewSpatial(cache, fees, finderCfg, logger)
	cyclic := arb.NewCyclic(cache, fees, finderCfg, logger)

	bus := publish.NewBus(0, logger)
	var pubOpts []publish.Option
	if redisClient != nil {
		pubOpts = append(pubOpts, publish.WithSink(publish.NewRedisSink(redisClient)))
	}
	pub := publish.New(spatial, cyclic, bus, publish.Config{Interval: cfg.PublishInterval()}, logger, pubOpts...)

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() { pub.Run(ctx) })

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewHandler(pub, bus, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	lifecycle.Go(func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api server")
		}
	})
	logger.Info().Str("addr", cfg.ListenAddr).Msg("api listening")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	start := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:            apiServer,
		mainCancel:        cancel,
		lifecycle:         &lifecycle,
		supervisor:        supervisor,
		cache:             cache,
		telemetryShutdown: telemetryShutdown,
	})
	logger.Info().Dur("elapsed", time.Since(start)).Msg("shutdown complete")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out = os.Stdout
	logger := zerolog.New(out)
	if fi, err := out.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

// newCache selects the cache backend. With a Redis address configured one
// client backs both the cache and the pub/sub sink, so auth and DB selection
// apply to both; otherwise everything stays in process memory.
func newCache(cfg config.Config, logger zerolog.Logger) (marketcache.Store, redis.UniversalClient) {
	if cfg.Redis.Addr == "" {
		return marketcache.NewMemory(cfg.TTL()), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return marketcache.NewRedis(client, cfg.TTL(), logger), client
}

func scanVenues(cfg config.Config, registry *venue.Registry) []schema.VenueID {
	if len(cfg.Venues) == 0 {
		return registry.Names()
	}
	venues := make([]schema.VenueID, 0, len(cfg.Venues))
	for _, name := range cfg.Venues {
		venues = append(venues, schema.NormalizeVenue(name))
	}
	return venues
}

type gracefulShutdownConfig struct {
	server            *http.Server
	mainCancel        context.CancelFunc
	lifecycle         *conc.WaitGroup
	supervisor        *ingest.Supervisor
	cache             marketcache.Store
	telemetryShutdown func(context.Context) error
}

func performGracefulShutdown(ctx context.Context, logger zerolog.Logger, cfg gracefulShutdownConfig) {
	step := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Info().Str("step", name).Msg("shutdown step")
		if err := fn(stepCtx); err != nil {
			logger.Error().Err(err).Str("step", name).Msg("shutdown step failed")
		}
	}

	step("api server", serverShutdownTimeout, func(stepCtx context.Context) error {
		return cfg.server.Shutdown(stepCtx)
	})

	cfg.mainCancel()

	step("ingestion", ingestShutdownTimeout, func(context.Context) error {
		return cfg.supervisor.Stop()
	})

	step("lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
		done := make(chan struct{})
		go func() {
			cfg.lifecycle.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stepCtx.Done():
			return fmt.Errorf("waiting for goroutines: %w", stepCtx.Err())
		}
	})

	// The Redis-backed cache owns the client shared with the pub/sub sink, so
	// closing the cache also closes the sink's connection.
	step("market cache", serverShutdownTimeout, func(context.Context) error {
		return cfg.cache.Close()
	})

	step("telemetry", telemetryShutdownTimeout, cfg.telemetryShutdown)
}
