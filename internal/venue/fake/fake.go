// Package fake provides a scripted in-memory venue. Supervisor and publisher
// tests drive it with canned stream sessions; without a script it emits a slow
// synthetic quote walk so it can stand in for a live venue end to end.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
)

const venueName schema.VenueID = "fake"

// Session scripts one subscription attempt: the quotes to push, then either a
// terminal error, a clean end, or (neither set) an open stream that lives
// until cancelled.
type Session struct {
	Quotes []schema.TopOfBook
	Err    error
	End    bool
}

// Client is the fake venue adapter.
type Client struct {
	name     schema.VenueID
	interval time.Duration

	mu       sync.Mutex
	symbols  []schema.Symbol
	scripts  map[string][]Session
	scripted map[string]bool
	attempts map[string]int
}

// Option configures the fake client.
type Option func(*Client)

// WithSymbols sets the symbols the venue claims to trade.
func WithSymbols(symbols ...schema.Symbol) Option {
	return func(c *Client) { c.symbols = symbols }
}

// WithInterval sets the synthetic quote period for unscripted streams.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// RegisterFactory installs the fake factory into the registry.
func RegisterFactory(reg *venue.Registry) error {
	return reg.Register(venueName, func(opts venue.Options) (venue.Client, error) {
		return New(), nil
	})
}

// New constructs a fake venue client.
func New(opts ...Option) *Client {
	c := &Client{
		name:     venueName,
		interval: time.Second,
		symbols:  []schema.Symbol{"BTC/USDT", "ETH/USDT", "ETH/BTC"},
		scripts:  make(map[string][]Session),
		scripted: make(map[string]bool),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Script queues sessions for one (symbol, kind) feed, consumed one per
// subscription attempt. When the queue drains, further attempts block open.
func (c *Client) Script(symbol schema.Symbol, kind schema.StreamKind, sessions ...Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := feedKey(symbol, kind)
	c.scripts[k] = append(c.scripts[k], sessions...)
	c.scripted[k] = true
}

// Attempts reports how many subscriptions were opened for the feed.
func (c *Client) Attempts(symbol schema.Symbol, kind schema.StreamKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[feedKey(symbol, kind)]
}

// Name identifies the venue.
func (c *Client) Name() schema.VenueID { return c.name }

// Symbols returns the configured symbol set.
func (c *Client) Symbols(context.Context) ([]schema.Symbol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Symbol, len(c.symbols))
	copy(out, c.symbols)
	return out, nil
}

// WatchTicker opens a scripted or synthetic ticker stream.
func (c *Client) WatchTicker(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamTicker)
}

// WatchOrderBook opens a scripted or synthetic depth stream.
func (c *Client) WatchOrderBook(ctx context.Context, symbol schema.Symbol) (venue.Stream, error) {
	return c.watch(ctx, symbol, schema.StreamOrderBook)
}

// Close releases nothing.
func (c *Client) Close() error { return nil }

func (c *Client) watch(ctx context.Context, symbol schema.Symbol, kind schema.StreamKind) (venue.Stream, error) {
	k := feedKey(symbol, kind)
	c.mu.Lock()
	c.attempts[k]++
	scripted := c.scripted[k]
	var session *Session
	if queue := c.scripts[k]; len(queue) > 0 {
		session = &queue[0]
		c.scripts[k] = queue[1:]
	}
	c.mu.Unlock()

	s := newStream(ctx)
	switch {
	case session != nil:
		go s.runScripted(c.name, symbol, *session)
	case scripted:
		// Drained script: stay open quietly so the supervisor settles.
		go s.runIdle()
	default:
		go s.runSynthetic(c.name, symbol, kind, c.interval)
	}
	return s, nil
}

func feedKey(symbol schema.Symbol, kind schema.StreamKind) string {
	return string(symbol) + "|" + string(kind)
}

type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	quotes chan schema.TopOfBook
	errc   chan error
	once   sync.Once
}

func newStream(ctx context.Context) *stream {
	ctx, cancel := context.WithCancel(ctx)
	return &stream{
		ctx:    ctx,
		cancel: cancel,
		quotes: make(chan schema.TopOfBook, 16),
		errc:   make(chan error, 1),
	}
}

func (s *stream) Quotes() <-chan schema.TopOfBook { return s.quotes }
func (s *stream) Err() <-chan error               { return s.errc }

func (s *stream) Close() error {
	s.cancel()
	return nil
}

func (s *stream) finish() {
	s.once.Do(func() { close(s.quotes) })
}

func (s *stream) push(tob schema.TopOfBook) bool {
	select {
	case s.quotes <- tob:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *stream) runScripted(name schema.VenueID, symbol schema.Symbol, session Session) {
	defer s.finish()
	for _, tob := range session.Quotes {
		tob.Venue = name
		tob.Symbol = symbol
		if tob.Timestamp == 0 {
			tob.Timestamp = time.Now().UnixMilli()
		}
		if !s.push(tob) {
			return
		}
	}
	switch {
	case session.Err != nil:
		select {
		case s.errc <- session.Err:
		default:
		}
	case session.End:
	default:
		<-s.ctx.Done()
	}
}

func (s *stream) runIdle() {
	defer s.finish()
	<-s.ctx.Done()
}

// runSynthetic walks bid/ask around a fixed base so downstream components see
// live-looking data without a network.
func (s *stream) runSynthetic(name schema.VenueID, symbol schema.Symbol, kind schema.StreamKind, interval time.Duration) {
	defer s.finish()
	base := decimal.NewFromInt(100)
	step := decimal.RequireFromString("0.05")
	spread := decimal.RequireFromString("0.1")
	vol := decimal.NewFromInt(1)
	if kind == schema.StreamTicker {
		vol = decimal.Zero
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	i := int64(0)
	for {
		// Triangle wave around the base keeps prices positive and bounded.
		offset := step.Mul(decimal.NewFromInt(i % 20))
		if (i/20)%2 == 1 {
			offset = step.Mul(decimal.NewFromInt(19 - i%20))
		}
		mid := base.Add(offset)
		tob := schema.TopOfBook{
			Venue:     name,
			Symbol:    symbol,
			Bid:       mid.Sub(spread),
			Ask:       mid.Add(spread),
			BidVolume: vol,
			AskVolume: vol,
			Timestamp: time.Now().UnixMilli(),
		}
		if !s.push(tob) {
			return
		}
		i++
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
