package marketcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

// Redis is the shared-backend Store. Quotes are stored as JSON with the TTL
// enforced server-side, so several scanner processes can share one view of
// the market. Read failures degrade to absent.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
	m      metrics
}

// NewRedis wraps an existing client, so auth and DB selection stay with the
// caller and the connection pool can be shared with the pub/sub sink. Close
// closes the client.
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "marketcache").Logger(),
		m:      newMetrics(),
	}
}

// PutTicker stores a ticker-sourced quote.
func (c *Redis) PutTicker(ctx context.Context, tob schema.TopOfBook) error {
	return c.put(ctx, schema.StreamTicker, tob)
}

// PutOrderBook stores a depth-sourced quote.
func (c *Redis) PutOrderBook(ctx context.Context, tob schema.TopOfBook) error {
	return c.put(ctx, schema.StreamOrderBook, tob)
}

func (c *Redis) put(ctx context.Context, kind schema.StreamKind, tob schema.TopOfBook) error {
	if !tob.Valid() {
		return errs.New(string(tob.Venue), errs.CodeInvalid, errs.WithMessage("refusing to cache one-sided quote"))
	}
	payload, err := json.Marshal(tob)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := c.client.Set(ctx, key(kind, tob.Venue, tob.Symbol), payload, c.ttl).Err(); err != nil {
		return errs.New(string(tob.Venue), errs.CodeCacheUnavailable,
			errs.WithMessage("cache write failed"), errs.WithCause(err))
	}
	return nil
}

// Ticker returns the ticker quote if present and fresh.
func (c *Redis) Ticker(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	return c.get(ctx, schema.StreamTicker, venue, symbol)
}

// OrderBook returns the depth quote if present and fresh.
func (c *Redis) OrderBook(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	return c.get(ctx, schema.StreamOrderBook, venue, symbol)
}

func (c *Redis) get(ctx context.Context, kind schema.StreamKind, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	k := key(kind, venue, symbol)
	raw, err := c.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.m.record(ctx, kind, "miss")
		return schema.TopOfBook{}, false
	case err != nil:
		c.m.record(ctx, kind, "error")
		c.logger.Warn().Err(err).Str("key", k).Msg("cache read failed, treating as absent")
		return schema.TopOfBook{}, false
	}
	var tob schema.TopOfBook
	if err := json.Unmarshal(raw, &tob); err != nil {
		c.m.record(ctx, kind, "error")
		c.logger.Warn().Err(err).Str("key", k).Msg("cache entry undecodable, treating as absent")
		return schema.TopOfBook{}, false
	}
	c.m.record(ctx, kind, "hit")
	return tob, true
}

// Ping verifies the backend connection.
func (c *Redis) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errs.New("", errs.CodeCacheUnavailable,
			errs.WithMessage("redis unreachable"), errs.WithCause(err))
	}
	return nil
}

// Close releases the client connection pool.
func (c *Redis) Close() error { return c.client.Close() }
