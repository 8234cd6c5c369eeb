package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys shared by the scanner's instruments.
const (
	// AttrVenue identifies the upstream exchange that produced the signal.
	AttrVenue = attribute.Key("venue")
	// AttrSymbol captures the trading pair (e.g. BTC/USDT).
	AttrSymbol = attribute.Key("symbol")
	// AttrStream differentiates ticker vs orderbook feeds.
	AttrStream = attribute.Key("stream")
	// AttrFinder labels finder metrics as spatial or cyclic.
	AttrFinder = attribute.Key("finder")
	// AttrResult records cache lookup outcomes (hit, miss, expired).
	AttrResult = attribute.Key("result")
	// AttrFeed names the published opportunity stream.
	AttrFeed = attribute.Key("feed")
)

// StreamAttributes returns the attribute set for per-stream counters.
func StreamAttributes(venue, symbol, stream string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrVenue.String(venue),
		AttrSymbol.String(symbol),
		AttrStream.String(stream),
	}
}

// CacheAttributes returns the attribute set for cache request counters.
func CacheAttributes(kind, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStream.String(kind),
		AttrResult.String(result),
	}
}
