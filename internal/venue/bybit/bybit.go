// Package bybit implements the spot market-data adapter for Bybit's v5
// public API. Both streams multiplex over one endpoint and subscribe with
// control frames; the level-1 orderbook topic pushes snapshot/delta pairs
// that are merged adapter-side.
package bybit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
)

const (
	venueName schema.VenueID = "bybit"

	defaultRESTBase = "https://api.bybit.com"
	defaultWSURL    = "wss://stream.bybit.com/v5/public/spot"
)

// Bybit expects an application-level heartbeat, not a protocol ping.
var pingFrame = []byte(`{"op":"ping"}`)

// RegisterFactory installs the bybit factory into the registry.
func RegisterFactory(reg *venue.Registry) error {
	return reg.Register(venueName, func(opts venue.Options) (venue.Client, error) {
		return New(opts), nil
	})
}

// Client is the Bybit spot adapter.
type Client struct {
	restBase string
	wsURL    string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New constructs a Bybit client with production endpoints.
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

type instrumentsResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
		NextPageCursor string `json:"nextPageCursor"`
	} `json:"result"`
}

// Symbols enumerates tradable spot instruments, following the page cursor.
func (c *Client) Symbols(ctx context.Context) ([]schema.Symbol, error) {
	var symbols []schema.Symbol
	cursor := ""
	for {
		endpoint := c.restBase + "/v5/market/instruments-info?category=spot&limit=1000"
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp instrumentsResponse
		if err := venue.GetJSON(ctx, venueName, c.http, c.limiter, endpoint, &resp); err != nil {
			return nil, err
		}
		if resp.RetCode != 0 {
			return nil, errs.New(string(venueName), errs.CodeVenueRejected,
				errs.WithMessage("instruments-info refused"),
				errs.WithRawCode(strconv.Itoa(resp.RetCode)), errs.WithRawMessage(resp.RetMsg))
		}
		for _, inst := range resp.Result.List {
			if inst.Status != "Trading" {
				continue
			}
			sym, err := schema.ParseSymbol(inst.BaseCoin + "/" + inst.QuoteCoin)
			if err != nil {
				continue
			}
			symbols = append(symbols, sym)
		}
		next := resp.Result.NextPageCursor
		if next == "" || next == cursor {
			return symbols, nil
		}
		cursor = next
	}
}

// WatchTicker opens the spot ticker stream for one symbol.
func (c *Client) WatchTicker(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:     venueName,
		Symbol:    symbol,
		Kind:      schema.StreamTicker,
		URL:       c.wsURL,
		Subscribe: [][]byte{subscribeFrame("tickers." + native)},
		PingFrame: pingFrame,
		Parse:     parseTicker,
		Logger:    c.logger,
	})
}

// WatchOrderBook opens the level-1 orderbook stream for one symbol.
func (c *Client) WatchOrderBook(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:     venueName,
		Symbol:    symbol,
		Kind:      schema.StreamOrderBook,
		URL:       c.wsURL,
		Subscribe: [][]byte{subscribeFrame("orderbook.1." + native)},
		PingFrame: pingFrame,
		Parse:     newBookParser(),
		Logger:    c.logger,
	})
}

// Close releases nothing: streams own their connections.
func (c *Client) Close() error { return nil }

func subscribeFrame(topic string) []byte {
	return []byte(`{"op":"subscribe","args":["` + topic + `"]}`)
}

func nativeSymbol(symbol schema.Symbol) (string, error) {
	base, quote, ok := symbol.Split()
	if !ok {
		return "", errs.New(string(venueName), errs.CodeInvalid, errs.WithMessage("malformed symbol "+string(symbol)))
	}
	return base + quote, nil
}
