// Package gate implements the spot market-data adapter for Gate.io's v4 API.
// Subscriptions go over one websocket endpoint with channel control frames;
// native symbols use an underscore separator (BTC_USDT).
package gate

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
)

const (
	venueName schema.VenueID = "gate"

	defaultRESTBase = "https://api.gateio.ws"
	defaultWSURL    = "wss://api.gateio.ws/ws/v4/"

	channelTicker     = "spot.tickers"
	channelBookTicker = "spot.book_ticker"
)

// RegisterFactory installs the gate factory into the registry.
func RegisterFactory(reg *venue.Registry) error {
	return reg.Register(venueName, func(opts venue.Options) (venue.Client, error) {
		return New(opts), nil
	})
}

// Client is the Gate.io spot adapter.
type Client struct {
	restBase string
	wsURL    string
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Gate.io client with production endpoints.
func New(opts venue.Options) *Client {
	return &Client{
		restBase: defaultRESTBase,
		wsURL:    defaultWSURL,
		http:     opts.HTTPClientOrDefault(),
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		logger:   opts.Logger.With().Str("venue", string(venueName)).Logger(),
		now:      time.Now,
	}
}

// Name identifies the venue.
func (c *Client) Name() schema.VenueID { return venueName }

type currencyPair struct {
	ID          string `json:"id"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

// Symbols enumerates the tradable spot currency pairs.
func (c *Client) Symbols(ctx context.Context) ([]schema.Symbol, error) {
	var pairs []currencyPair
	if err := venue.GetJSON(ctx, venueName, c.http, c.limiter, c.restBase+"/api/v4/spot/currency_pairs", &pairs); err != nil {
		return nil, err
	}
	symbols := make([]schema.Symbol, 0, len(pairs))
	for _, p := range pairs {
		if p.TradeStatus != "tradable" {
			continue
		}
		sym, err := schema.ParseSymbol(p.Base + "/" + p.Quote)
		if err != nil {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// WatchTicker opens the spot.tickers channel for one symbol.
func (c *Client) WatchTicker(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamTicker, channelTicker, parseTicker)
}

// WatchOrderBook opens the spot.book_ticker channel for one symbol.
func (c *Client) WatchOrderBook(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamOrderBook, channelBookTicker, parseBookTicker)
}

func (c *Client) watch(ctx context.Context, symbol schema.Symbol, kind schema.StreamKind, channel string, parse venue.ParseFunc) (venue.Stream, error) {
	native, err := nativeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return venue.OpenStream(ctx, venue.StreamConfig{
		Venue:     venueName,
		Symbol:    symbol,
		Kind:      kind,
		URL:       c.wsURL,
		Subscribe: [][]byte{c.subscribeFrame(channel, native)},
		Parse:     parse,
		Logger:    c.logger,
	})
}

// Close releases nothing: streams own their connections.
func (c *Client) Close() error { return nil }

func (c *Client) subscribeFrame(channel, native string) []byte {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	return []byte(`{"time":` + ts + `,"channel":"` + channel + `","event":"subscribe","payload":["` + native + `"]}`)
}

func nativeSymbol(symbol schema.Symbol) (string, error) {
	base, quote, ok := symbol.Split()
	if !ok {
		return "", errs.New(string(venueName), errs.CodeInvalid, errs.WithMessage("malformed symbol "+string(symbol)))
	}
	return base + "_" + quote, nil
}
