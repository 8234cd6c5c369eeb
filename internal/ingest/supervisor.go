// Package ingest supervises the market-data fan-in: one long-lived stream task
// per (venue, symbol, stream kind), each normalizing quotes into the freshness
// cache and reconnecting on failure without disturbing its siblings.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/commission"
	"github.com/arbscan/arbscan/internal/marketcache"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/telemetry"
	"github.com/arbscan/arbscan/internal/venue"
)

const (
	// DefaultBackoff paces reconnect attempts after a stream failure.
	DefaultBackoff = 5 * time.Second
	// DefaultStopGrace bounds how long Stop waits before abandoning tasks.
	DefaultStopGrace = 15 * time.Second
)

// State is a supervised stream's lifecycle phase.
type State string

const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	// StateClosed marks a clean upstream close, StateError a failed stream.
	// Either precedes StateBackoff unless the error was permanent.
	StateClosed  State = "closed"
	StateError   State = "error"
	StateBackoff State = "backoff"
	StateStopped State = "stopped"
)

// StateHook observes stream transitions. Used by tests; must not block.
type StateHook func(v schema.VenueID, symbol schema.Symbol, kind schema.StreamKind, state State)

// Config sizes the supervisor.
type Config struct {
	// Venues to ingest. Each must have a registered adapter factory.
	Venues    []schema.VenueID
	Backoff   time.Duration
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

// Supervisor owns the lifecycle of every venue stream task.
type Supervisor struct {
	cfg       Config
	registry  *venue.Registry
	fees      *commission.Table
	cache     marketcache.Store
	venueOpts venue.Options
	logger    zerolog.Logger
	hook      StateHook

	mu      sync.Mutex
	cancel  context.CancelFunc
	tasks   *conc.WaitGroup
	clients []venue.Client
}

// New constructs a supervisor. The commission table decides which symbols each
// venue ingests; the registry supplies the adapters.
func New(registry *venue.Registry, fees *commission.Table, cache marketcache.Store, cfg Config, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		fees:      fees,
		cache:     cache,
		venueOpts: venue.Options{Logger: logger},
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// SetStateHook installs a transition observer. Call before Start.
func (s *Supervisor) SetStateHook(hook StateHook) { s.hook = hook }

// Start launches the stream tasks. A second call stops the running generation
// first. The cache must be reachable; otherwise ingestion refuses to start.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("stopping previous ingestion generation")
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err := s.cache.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return errs.New("ingest", errs.CodeCacheUnavailable,
			errs.WithMessage("market cache unreachable, refusing to start ingestion"), errs.WithCause(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	tasks := &conc.WaitGroup{}
	var clients []venue.Client

	started := 0
	for _, name := range s.cfg.Venues {
		client, symbols, ok := s.bootstrapVenue(runCtx, name)
		if !ok {
			continue
		}
		clients = append(clients, client)
		for _, symbol := range symbols {
			for _, kind := range [...]schema.StreamKind{schema.StreamTicker, schema.StreamOrderBook} {
				c, sym, k := client, symbol, kind
				tasks.Go(func() { s.runStream(runCtx, c, sym, k) })
				started++
			}
		}
	}
	s.logger.Info().Int("streams", started).Int("venues", len(clients)).Msg("ingestion started")

	s.mu.Lock()
	s.cancel = cancel
	s.tasks = tasks
	s.clients = clients
	s.mu.Unlock()
	return nil
}

// Stop cancels every stream task and waits up to the configured grace period.
// Tasks that ignore cancellation are logged and abandoned.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, tasks, clients := s.cancel, s.tasks, s.clients
	s.cancel, s.tasks, s.clients = nil, nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		tasks.Wait()
		close(done)
	}()
	var stopErr error
	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		s.logger.Error().Dur("grace", s.cfg.StopGrace).Msg("stream tasks ignored cancellation, abandoning")
		stopErr = errs.New("ingest", errs.CodeTransientStream, errs.WithMessage("shutdown grace period exceeded"))
	}
	for _, client := range clients {
		if err := client.Close(); err != nil {
			s.logger.Warn().Err(err).Str("venue", string(client.Name())).Msg("closing venue client")
		}
	}
	return stopErr
}

// bootstrapVenue constructs the adapter and resolves its operating symbol set:
// the configured commission symbols intersected with what the venue trades.
func (s *Supervisor) bootstrapVenue(ctx context.Context, name schema.VenueID) (venue.Client, []schema.Symbol, bool) {
	client, err := s.registry.New(name, s.venueOpts)
	if err != nil {
		s.logger.Error().Err(err).Str("venue", string(name)).Msg("constructing venue adapter")
		return nil, nil, false
	}
	supported, err := client.Symbols(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("venue", string(name)).Msg("enumerating venue symbols, skipping venue")
		_ = client.Close()
		return nil, nil, false
	}
	supportedSet := make(map[schema.Symbol]struct{}, len(supported))
	for _, sym := range supported {
		supportedSet[sym] = struct{}{}
	}
	var symbols []schema.Symbol
	for _, sym := range s.fees.SymbolsFor(name) {
		if _, ok := supportedSet[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		s.logger.Warn().Str("venue", string(name)).Msg("no usable symbols, skipping venue")
		_ = client.Close()
		return nil, nil, false
	}
	return client, symbols, true
}

var (
	reconnectOnce    sync.Once
	reconnectCounter metric.Int64Counter
)

func reconnectMetric() metric.Int64Counter {
	reconnectOnce.Do(func() {
		reconnectCounter, _ = otel.Meter("ingest").Int64Counter("ingest.reconnects",
			metric.WithDescription("Stream reconnect attempts after failure"),
			metric.WithUnit("{reconnect}"))
	})
	return reconnectCounter
}

// runStream drives one feed through connect/stream/backoff until cancelled or
// the venue rejects it permanently. Errors never escape; the worst outcome for
// a broken feed is a quiet retry loop.
func (s *Supervisor) runStream(ctx context.Context, client venue.Client, symbol schema.Symbol, kind schema.StreamKind) {
	logger := s.logger.With().
		Str("venue", string(client.Name())).
		Str("symbol", string(symbol)).
		Str("stream", string(kind)).
		Logger()
	boff := backoff.NewConstantBackOff(s.cfg.Backoff)
	attrs := metric.WithAttributes(telemetry.StreamAttributes(
		string(client.Name()), string(symbol), string(kind))...)

	for {
		if ctx.Err() != nil {
			s.transition(client.Name(), symbol, kind, StateStopped)
			return
		}
		s.transition(client.Name(), symbol, kind, StateConnecting)

		stream, err := watch(ctx, client, symbol, kind)
		if err == nil {
			s.transition(client.Name(), symbol, kind, StateStreaming)
			err = s.consume(ctx, stream, kind)
			_ = stream.Close()
		}
		if ctx.Err() != nil {
			s.transition(client.Name(), symbol, kind, StateStopped)
			return
		}
		switch {
		case err == nil:
			logger.Warn().Msg("stream closed upstream, reconnecting")
			s.transition(client.Name(), symbol, kind, StateClosed)
		case errs.Permanent(err):
			logger.Error().Err(err).Msg("permanent venue error, abandoning feed")
			s.transition(client.Name(), symbol, kind, StateStopped)
			return
		default:
			logger.Warn().Err(err).Msg("stream failed, reconnecting")
			s.transition(client.Name(), symbol, kind, StateError)
		}

		if m := reconnectMetric(); m != nil {
			m.Add(ctx, 1, attrs)
		}
		s.transition(client.Name(), symbol, kind, StateBackoff)
		select {
		case <-ctx.Done():
			s.transition(client.Name(), symbol, kind, StateStopped)
			return
		case <-time.After(boff.NextBackOff()):
		}
	}
}

// consume copies quotes into the cache until the stream drains. Returns the
// stream's terminal error, or nil for a clean close or cancellation.
func (s *Supervisor) consume(ctx context.Context, stream venue.Stream, kind schema.StreamKind) error {
	put := s.cache.PutOrderBook
	if kind == schema.StreamTicker {
		put = s.cache.PutTicker
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case tob, ok := <-stream.Quotes():
			if !ok {
				select {
				case err := <-stream.Err():
					return err
				default:
					return nil
				}
			}
			if err := put(ctx, tob); err != nil {
				s.logger.Debug().Err(err).
					Str("venue", string(tob.Venue)).
					Str("symbol", string(tob.Symbol)).
					Msg("cache write failed")
			}
		}
	}
}

func watch(ctx context.Context, client venue.Client, symbol schema.Symbol, kind schema.StreamKind) (venue.Stream, error) {
	if kind == schema.StreamTicker {
		return client.WatchTicker(ctx, symbol)
	}
	return client.WatchOrderBook(ctx, symbol)
}

func (s *Supervisor) transition(v schema.VenueID, symbol schema.Symbol, kind schema.StreamKind, state State) {
	if s.hook != nil {
		s.hook(v, symbol, kind, state)
	}
}
