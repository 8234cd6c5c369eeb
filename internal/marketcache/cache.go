// Package marketcache stores the freshest top-of-book quote per (venue,
// symbol) with a TTL, in separate ticker and orderbook namespaces. Adapters
// write, finders read; entries older than the TTL read as absent.
package marketcache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/telemetry"
)

// DefaultTTL is the freshness window applied when none is configured.
const DefaultTTL = 60 * time.Second

// Store is the freshness cache consulted by the finders and fed by the venue
// adapters. Reads degrade to absent when the backend is unreachable; writes
// surface their error so adapters can log it.
type Store interface {
	PutTicker(ctx context.Context, tob schema.TopOfBook) error
	PutOrderBook(ctx context.Context, tob schema.TopOfBook) error
	Ticker(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool)
	OrderBook(ctx context.Context, venue schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool)

	// Ping reports backend reachability. Ingestion refuses to start when it fails.
	Ping(ctx context.Context) error
	Close() error
}

// key builds the storage key, e.g. "orderbook:binance:BTC/USDT".
func key(kind schema.StreamKind, venue schema.VenueID, symbol schema.Symbol) string {
	return string(kind) + ":" + string(venue) + ":" + string(symbol)
}

type metrics struct {
	requests metric.Int64Counter
}

func newMetrics() metrics {
	meter := otel.Meter("marketcache")
	var m metrics
	m.requests, _ = meter.Int64Counter("marketcache.requests",
		metric.WithDescription("Cache read outcomes by kind"),
		metric.WithUnit("{request}"))
	return m
}

func (m metrics) record(ctx context.Context, kind schema.StreamKind, result string) {
	if m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(telemetry.CacheAttributes(string(kind), result)...))
}
