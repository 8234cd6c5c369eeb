// Package mexc implements the spot market-data adapter for MEXC. Both stream
// kinds ride the public bookTicker channel: the venue's summary ticker pushes
// no quote sides, so the ticker variant is the same feed with depth sizes
// stripped.
package mexc

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
)

const (
	venueName schema.VenueID = "mexc"

	defaultRESTBase = "https://api.mexc.com"
	defaultWSURL    = "wss://wbs.mexc.com/ws"
)

// MEXC expects an application-level heartbeat.
var pingFrame = []byte(`{"method":"PING"}`)

// RegisterFactory installs the mexc factory into the registry.
func RegisterFactory(reg *venue.Registry) error {
	return reg.Register(venueName, func(opts venue.Options) (venue.Client, error) {
		return New(opts), nil
	})
}

// Client is the MEXC spot adapter.
type Client struct {
	restBase string
	wsURL    string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New constructs a MEXC client with production endpoints.
func New(opts venue.Options) *Client {
	return &Client{
		restBase: defaultRESTBase,
		wsURL:    defaultWSURL,
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

// Symbols enumerates the tradable spot instruments. The venue has shipped both
// "ENABLED" and "1" as the live status value.
func (c *Client) Symbols(ctx context.Context) ([]schema.Symbol, error) {
	var info exchangeInfo
	if err := venue.GetJSON(ctx, venueName, c.http, c.limiter, c.restBase+"/api/v3/exchangeInfo", &info); err != nil {
		return nil, err
	}
	symbols := make([]schema.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if (s.Status != "ENABLED" && s.Status != "1") || !s.IsSpotTradingAllowed {
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

// WatchTicker opens the bookTicker channel with depth sizes stripped.
func (c *Client) WatchTicker(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamTicker, parseTicker)
}

// WatchOrderBook opens the bookTicker channel for one symbol.
func (c *Client) WatchOrderBook(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamOrderBook, parseBookTicker)
}

func (c *Client) watch(ctx context.Context, symbol schema.Symbol, kind schema.StreamKind, parse venue.ParseFunc) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:     venueName,
		Symbol:    symbol,
		Kind:      kind,
		URL:       c.wsURL,
		Subscribe: [][]byte{subscribeFrame(native)},
		PingFrame: pingFrame,
		Parse:     parse,
		Logger:    c.logger,
	})
}

// Close releases nothing: streams own their connections.
func (c *Client) Close() error { return nil }

func subscribeFrame(native string) []byte {
	return []byte(`{"method":"SUBSCRIPTION","params":["spot@public.bookTicker.v3.api@` + native + `"]}`)
}

func nativeSymbol(symbol schema.Symbol) (string, error) {
	base, quote, ok := symbol.Split()
	if !ok {
		return "", errs.New(string(venueName), errs.CodeInvalid, errs.WithMessage("malformed symbol "+string(symbol)))
	}
	return base + quote, nil
}
