// Package publish drives the finders on a fixed period and fans the encoded
// result sets out to subscribers and optional external sinks.
package publish

import (
	"context"
	"sync"

	"github.com/google/uuid"
	concpool "github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rs/zerolog"

	"github.com/arbscan/arbscan/internal/telemetry"
)

// Feed names one opportunity stream.
type Feed string

const (
	// FeedSpatial carries two-venue opportunities.
	FeedSpatial Feed = "cex_cex"
	// FeedCyclic carries multi-leg cycle opportunities.
	FeedCyclic Feed = "cex_cex_cex"
)

const defaultBufferSize = 8

// Bus is the in-process fan-out: each subscriber owns a buffered channel of
// encoded payloads. A slow subscriber loses its oldest payload, never blocks
// the publisher.
type Bus struct {
	buffer  int
	workers int
	logger  zerolog.Logger

	mu     sync.RWMutex
	subs   map[Feed]map[uuid.UUID]*subscriber
	closed bool

	fanoutHistogram metric.Int64Histogram
	droppedCounter  metric.Int64Counter
}

type subscriber struct {
	ch   chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewBus constructs a bus with the given per-subscriber buffer.
func NewBus(buffer int, logger zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	b := &Bus{
		buffer:  buffer,
		workers: 4,
		logger:  logger.With().Str("component", "publish.bus").Logger(),
		subs:    make(map[Feed]map[uuid.UUID]*subscriber),
	}
	meter := otel.Meter("publish")
	b.fanoutHistogram, _ = meter.Int64Histogram("publish.fanout.size",
		metric.WithDescription("Subscribers per published batch"),
		metric.WithUnit("{subscriber}"))
	b.droppedCounter, _ = meter.Int64Counter("publish.dropped",
		metric.WithDescription("Payloads dropped due to subscriber backpressure"),
		metric.WithUnit("{payload}"))
	return b
}

// Subscribe registers for one feed. The channel closes on Unsubscribe or bus
// Close.
func (b *Bus) Subscribe(feed Feed) (uuid.UUID, <-chan []byte) {
	sub := &subscriber{ch: make(chan []byte, b.buffer)}
	id := uuid.New()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return id, sub.ch
	}
	if _, ok := b.subs[feed]; !ok {
		b.subs[feed] = make(map[uuid.UUID]*subscriber)
	}
	b.subs[feed][id] = sub
	return id, sub.ch
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for feed, subs := range b.subs {
		if sub, ok := subs[id]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, feed)
			}
			sub.close()
			return
		}
	}
}

// Publish fans one encoded payload out to every subscriber of the feed. The
// read lock is held across delivery: sends never block (drop-oldest), so an
// Unsubscribe waiting on the write lock is only briefly delayed and can never
// close a channel mid-send.
func (b *Bus) Publish(ctx context.Context, feed Feed, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	subs := make([]*subscriber, 0, len(b.subs[feed]))
	for _, sub := range b.subs[feed] {
		subs = append(subs, sub)
	}

	if b.fanoutHistogram != nil {
		b.fanoutHistogram.Record(ctx, int64(len(subs)),
			metric.WithAttributes(telemetry.AttrFeed.String(string(feed))))
	}
	if len(subs) == 0 {
		return
	}

	p := concpool.New().WithMaxGoroutines(b.workers)
	for _, sub := range subs {
		s := sub
		p.Go(func() { b.deliver(ctx, feed, s, payload) })
	}
	p.Wait()
}

// deliver pushes the payload, evicting the subscriber's oldest payload when
// the buffer is full.
func (b *Bus) deliver(ctx context.Context, feed Feed, sub *subscriber, payload []byte) {
	select {
	case sub.ch <- payload:
		return
	default:
	}
	select {
	case <-sub.ch:
		if b.droppedCounter != nil {
			b.droppedCounter.Add(ctx, 1, metric.WithAttributes(telemetry.AttrFeed.String(string(feed))))
		}
		b.logger.Debug().Str("feed", string(feed)).Msg("subscriber buffer full, dropped oldest payload")
	default:
	}
	select {
	case sub.ch <- payload:
	default:
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for feed, subs := range b.subs {
		for id, sub := range subs {
			sub.close()
			delete(subs, id)
		}
		delete(b.subs, feed)
	}
}
