package publish

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/telemetry"
)

// DefaultInterval is the publish period when none is configured.
const DefaultInterval = 5 * time.Second

// SpatialFinder produces two-venue opportunities.
type SpatialFinder interface {
	Find(ctx context.Context) ([]schema.SpatialOpportunity, error)
}

// CyclicFinder produces multi-leg cycle opportunities.
type CyclicFinder interface {
	Find(ctx context.Context) ([]schema.CyclicOpportunity, error)
}

// Sink receives each encoded batch alongside the bus subscribers, e.g. a
// Redis pub/sub channel.
type Sink interface {
	Publish(ctx context.Context, feed Feed, payload []byte) error
}

// Config sizes the publisher.
type Config struct {
	Interval time.Duration
}

// Publisher runs both finders on a fixed period and broadcasts the encoded
// results. One iteration's failure never stops the loop.
type Publisher struct {
	spatial  SpatialFinder
	cyclic   CyclicFinder
	bus      *Bus
	sinks    []Sink
	interval time.Duration
	logger   zerolog.Logger

	searchDuration metric.Float64Histogram
	foundCounter   metric.Int64Counter
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSink adds an external broadcast target.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// New constructs a publisher over the two finders.
func New(spatial SpatialFinder, cyclic CyclicFinder, bus *Bus, cfg Config, logger zerolog.Logger, opts ...Option) *Publisher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Publisher{
		spatial:  spatial,
		cyclic:   cyclic,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "publish").Logger(),
	}
	meter := otel.Meter("publish")
	p.searchDuration, _ = meter.Float64Histogram("arbitrage.search.duration",
		metric.WithDescription("Finder pass duration"),
		metric.WithUnit("ms"))
	p.foundCounter, _ = meter.Int64Counter("arbitrage.opportunities.found",
		metric.WithDescription("Opportunities emitted per finder"),
		metric.WithUnit("{opportunity}"))
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run ticks on the fixed interval until cancelled. Iterations never overlap:
// an overrunning tick simply delays until the ticker's next fire.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	p.broadcast(ctx, FeedSpatial, func() (any, int) {
		opps := p.SpatialNow(ctx)
		return opps, len(opps)
	})
	p.broadcast(ctx, FeedCyclic, func() (any, int) {
		opps := p.CyclicNow(ctx)
		return opps, len(opps)
	})
}

func (p *Publisher) broadcast(ctx context.Context, feed Feed, find func() (any, int)) {
	batch, _ := find()
	payload, err := json.Marshal(batch)
	if err != nil {
		p.logger.Error().Err(err).Str("feed", string(feed)).Msg("encoding opportunity batch")
		return
	}
	p.bus.Publish(ctx, feed, payload)
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, feed, payload); err != nil {
			p.logger.Warn().Err(err).Str("feed", string(feed)).Msg("sink publish failed")
		}
	}
}

// SpatialNow runs the pairwise finder once. A failed pass logs and returns an
// empty batch; callers always get a well-formed (possibly empty) slice.
func (p *Publisher) SpatialNow(ctx context.Context) []schema.SpatialOpportunity {
	var opps []schema.SpatialOpportunity
	err := p.timed(ctx, "spatial", func() (n int, err error) {
		opps, err = p.spatial.Find(ctx)
		return len(opps), err
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("spatial finder pass failed")
		return []schema.SpatialOpportunity{}
	}
	if opps == nil {
		opps = []schema.SpatialOpportunity{}
	}
	return opps
}

// CyclicNow runs the cycle finder once with the same failure policy.
func (p *Publisher) CyclicNow(ctx context.Context) []schema.CyclicOpportunity {
	var opps []schema.CyclicOpportunity
	err := p.timed(ctx, "cyclic", func() (n int, err error) {
		opps, err = p.cyclic.Find(ctx)
		return len(opps), err
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("cyclic finder pass failed")
		return []schema.CyclicOpportunity{}
	}
	if opps == nil {
		opps = []schema.CyclicOpportunity{}
	}
	return opps
}

// timed wraps one finder pass with duration and count metrics, converting a
// panic into an error so a buggy pass cannot take the loop down.
func (p *Publisher) timed(ctx context.Context, finder string, pass func() (int, error)) (err error) {
	start := time.Now()
	attrs := metric.WithAttributes(telemetry.AttrFinder.String(finder))
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{finder: finder, value: r}
		}
		if p.searchDuration != nil {
			p.searchDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		}
	}()
	n, err := pass()
	if err == nil && p.foundCounter != nil && n > 0 {
		p.foundCounter.Add(ctx, int64(n), attrs)
	}
	return err
}

type panicError struct {
	finder string
	value  any
}

func (e *panicError) Error() string {
	return e.finder + " finder panicked"
}
