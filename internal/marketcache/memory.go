package marketcache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

const shardCount = 32

// Memory is the in-process Store: sharded maps with lazy TTL eviction on read.
// A write touches exactly one shard lock, so ingestion never waits on finders
// scanning other shards.
type Memory struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]shard
	m      metrics
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	tob      schema.TopOfBook
	storedAt time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *Memory) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemory constructs an in-process cache with the given TTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Memory{ttl: ttl, now: time.Now, m: newMetrics()}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]entry)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// PutTicker stores a ticker-sourced quote.
func (c *Memory) PutTicker(_ context.Context, tob schema.TopOfBook) error {
	return c.put(schema.StreamTicker, tob)
}

// PutOrderBook stores a depth-sourced quote.
func (c *Memory) PutOrderBook(_ context.Context, tob schema.TopOfBook) error {
	return c.put(schema.StreamOrderBook, tob)
}

func (c *Memory) put(kind schema.StreamKind, tob schema.TopOfBook) error {
	if !tob.Valid() {
		return errs.New(string(tob.Venue), errs.CodeInvalid, errs.WithMessage("refusing to cache one-sided quote"))
	}
	k := key(kind, tob.Venue, tob.Symbol)
	s := c.shard(k)
	s.mu.Lock()
	s.entries[k] = entry{tob: tob, storedAt: c.now()}
	s.mu.Unlock()
	return nil
}

// Ticker returns the ticker quote if present and fresh.
func (c *Memory) Ticker(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	return c.get(ctx, schema.StreamTicker, venue, symbol)
}

// OrderBook returns the depth quote if present and fresh.
func (c *Memory) OrderBook(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	return c.get(ctx, schema.StreamOrderBook, venue, symbol)
}

func (c *Memory) get(ctx context.Context, kind schema.StreamKind, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	k := key(kind, venue, symbol)
	s := c.shard(k)
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if !ok {
		c.m.record(ctx, kind, "miss")
		return schema.TopOfBook{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.m.record(ctx, kind, "expired")
		s.mu.Lock()
		// Re-check: a fresh write may have landed between the read and this lock.
		if cur, ok := s.entries[k]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(s.entries, k)
		}
		s.mu.Unlock()
		return schema.TopOfBook{}, false
	}
	c.m.record(ctx, kind, "hit")
	return e.tob, true
}

// Ping always succeeds for the in-process backend.
func (c *Memory) Ping(context.Context) error { return nil }

// Close releases nothing for the in-process backend.
func (c *Memory) Close() error { return nil }

func (c *Memory) shard(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return &c.shards[h.Sum32()%shardCount]
}
