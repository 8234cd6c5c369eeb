// Package schema defines the canonical market-data and opportunity types shared
// by venue adapters, the freshness cache, and the arbitrage finders.
package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
)

// VenueID identifies a supported exchange. Always lowercase.
type VenueID string

// NormalizeVenue lowercases and trims a venue identifier.
func NormalizeVenue(s string) VenueID {
	return VenueID(strings.ToLower(strings.TrimSpace(s)))
}

// Upper returns the uppercase wire spelling of the venue.
func (v VenueID) Upper() string { return strings.ToUpper(string(v)) }

// Validate ensures the venue identifier is non-empty lowercase alphanumeric.
func (v VenueID) Validate() error {
	if v == "" {
		return errs.New("schema/venue", errs.CodeInvalid, errs.WithMessage("venue id required"))
	}
	for _, r := range v {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return errs.New("schema/venue", errs.CodeInvalid, errs.WithMessage("venue id must be lowercase alphanumeric"))
		}
	}
	return nil
}

// Symbol is the canonical instrument spelling BASE/QUOTE, both legs uppercase.
type Symbol string

// Currency legs run from ticker-length codes to the longest listed spellings.
const (
	minLegLen = 3
	maxLegLen = 10
)

// ParseSymbol validates and canonicalizes an instrument symbol.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errs.New("schema/symbol", errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	base, quote, ok := strings.Cut(s, "/")
	if !ok || strings.Contains(quote, "/") {
		return "", errs.New("schema/symbol", errs.CodeInvalid, errs.WithMessage("symbol requires exactly one '/'"))
	}
	for _, leg := range [...]string{base, quote} {
		if len(leg) < minLegLen || len(leg) > maxLegLen {
			return "", errs.New("schema/symbol", errs.CodeInvalid, errs.WithMessage("symbol legs must be 3 to 10 characters"))
		}
		for _, r := range leg {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return "", errs.New("schema/symbol", errs.CodeInvalid, errs.WithMessage("symbol legs must be uppercase alphanumeric"))
			}
		}
	}
	return Symbol(s), nil
}

// Split returns the base and quote currencies. ok is false for malformed symbols.
func (s Symbol) Split() (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(string(s), "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

// Base returns the base currency, or the empty string for malformed symbols.
func (s Symbol) Base() string {
	base, _, _ := s.Split()
	return base
}

// Quote returns the quote currency, or the empty string for malformed symbols.
func (s Symbol) Quote() string {
	_, quote, _ := s.Split()
	return quote
}

// Side captures the direction of a leg.
type Side string

const (
	// SideBuy spends quote currency to acquire base.
	SideBuy Side = "buy"
	// SideSell spends base currency to acquire quote.
	SideSell Side = "sell"
)

// StreamKind distinguishes the two market-data subscriptions a venue serves.
type StreamKind string

const (
	// StreamTicker is the summary ticker stream (no depth volumes).
	StreamTicker StreamKind = "ticker"
	// StreamOrderBook is the top-of-book depth stream.
	StreamOrderBook StreamKind = "orderbook"
)

// TopOfBook is the best bid/ask quote for one symbol on one venue.
// Ticker-sourced quotes carry zero volumes.
type TopOfBook struct {
	Venue     VenueID         `json:"venue"`
	Symbol    Symbol          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidVolume decimal.Decimal `json:"bid_volume"`
	AskVolume decimal.Decimal `json:"ask_volume"`
	// Timestamp is venue event time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// Valid reports whether the quote is usable: both sides present and positive.
func (t TopOfBook) Valid() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}

// Mid returns the bid/ask midpoint.
func (t TopOfBook) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Time converts the millisecond timestamp to a time.Time.
func (t TopOfBook) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}
