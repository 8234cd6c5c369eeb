// Package binance implements the spot market-data adapter for Binance.
//
// Symbol enumeration uses the REST exchangeInfo endpoint; ticker and
// top-of-book streams use the raw single-stream websocket endpoints
// (<symbol>@ticker and <symbol>@bookTicker), which subscribe via the URL and
// need no control frames.
package binance

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
)

const (
	venueName schema.VenueID = "binance"

	defaultRESTBase = "https://api.binance.com"
	defaultWSBase   = "wss://stream.binance.com:9443/ws"
)

// RegisterFactory installs the binance factory into the registry.
func RegisterFactory(reg *venue.Registry) error {
	return reg.Register(venueName, func(opts venue.Options) (venue.Client, error) {
		return New(opts), nil
	})
}

// Client is the Binance spot adapter.
type Client struct {
	restBase string
	wsBase   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New constructs a Binance client with production endpoints.
func New(opts venue.Options) *Client {
	return &Client{
		restBase: defaultRESTBase,
		wsBase:   defaultWSBase,
		http:     opts.HTTPClientOrDefault(),
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		logger:   opts.Logger.With().Str("venue", string(venueName)).Logger(),
	}
}

// Name identifies the venue.
func (c *Client) Name() schema.VenueID { return venueName }

type exchangeInfo struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		BaseAsset            string `json:"baseAsset"`
		QuoteAsset           string `json:"quoteAsset"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
	} `json:"symbols"`
}

// Symbols enumerates the tradable spot instruments.
func (c *Client) Symbols(ctx context.Context) ([]schema.Symbol, error) {
	var info exchangeInfo
	if err := venue.GetJSON(ctx, venueName, c.http, c.limiter, c.restBase+"/api/v3/exchangeInfo", &info); err != nil {
		return nil, err
	}
	symbols := make([]schema.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		sym, err := schema.ParseSymbol(s.BaseAsset + "/" + s.QuoteAsset)
		if err != nil {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// WatchTicker opens the 24h rolling ticker stream for one symbol.
func (c *Client) WatchTicker(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:  venueName,
		Symbol: symbol,
		Kind:   schema.StreamTicker,
		URL:    c.wsBase + "/" + strings.ToLower(native) + "@ticker",
		Parse:  parseTicker,
		Logger: c.logger,
	})
}

// WatchOrderBook opens the best bid/ask (bookTicker) stream for one symbol.
func (c *Client) WatchOrderBook(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:  venueName,
		Symbol: symbol,
		Kind:   schema.StreamOrderBook,
		URL:    c.wsBase + "/" + strings.ToLower(native) + "@bookTicker",
		Parse:  parseBookTicker,
		Logger: c.logger,
	})
}

// Close releases nothing: streams own their connections.
func (c *Client) Close() error { return nil }

func nativeSymbol(symbol schema.Symbol) (string, error) {
	base, quote, ok := symbol.Split()
	if !ok {
		return "", errs.New(string(venueName), errs.CodeInvalid, errs.WithMessage("malformed symbol "+string(symbol)))
	}
	return base + quote, nil
}
