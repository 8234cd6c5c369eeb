package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/commission"
	"github.com/arbscan/arbscan/internal/marketcache"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/venue"
	"github.com/arbscan/arbscan/internal/venue/fake"
)

type transitionLog struct {
	mu     sync.Mutex
	states map[string][]State
	times  map[string][]time.Time
}

func newTransitionLog() *transitionLog {
	return &transitionLog{states: make(map[string][]State), times: make(map[string][]time.Time)}
}

func (l *transitionLog) hook(v schema.VenueID, symbol schema.Symbol, kind schema.StreamKind, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := string(v) + "|" + string(symbol) + "|" + string(kind)
	l.states[k] = append(l.states[k], state)
	l.times[k] = append(l.times[k], time.Now())
}

func (l *transitionLog) snapshot(k string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, len(l.states[k]))
	copy(out, l.states[k])
	return out
}

func testFixture(t *testing.T, client *fake.Client, cfg Config) (*Supervisor, *marketcache.Memory) {
	t.Helper()
	reg := venue.NewRegistry()
	if err := reg.Register(client.Name(), func(venue.Options) (venue.Client, error) { return client, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	fees := commission.NewTable(commission.Raw{
		string(client.Name()): {"BTC/USDT": {"taker_buy_rate": "0.10%"}},
	}, zerolog.Nop())
	cache := marketcache.NewMemory(time.Minute)
	cfg.Venues = []schema.VenueID{client.Name()}
	return New(reg, fees, cache, cfg, zerolog.Nop()), cache
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStreamFailureReconnectsAfterBackoff(t *testing.T) {
	client := fake.New(fake.WithSymbols("BTC/USDT"), fake.WithInterval(time.Hour))
	quote := schema.TopOfBook{
		Bid: decimal.NewFromInt(49000), Ask: decimal.NewFromInt(50000),
		BidVolume: decimal.NewFromInt(1), AskVolume: decimal.NewFromInt(1),
	}
	client.Script("BTC/USDT", schema.StreamOrderBook,
		fake.Session{Quotes: []schema.TopOfBook{quote}, Err: errs.New("fake", errs.CodeTransientStream, errs.WithMessage("feed reset"))},
		fake.Session{},
	)
	client.Script("BTC/USDT", schema.StreamTicker, fake.Session{})

	backoff := 50 * time.Millisecond
	sup, cache := testFixture(t, client, Config{Backoff: backoff, StopGrace: time.Second})
	log := newTransitionLog()
	sup.SetStateHook(log.hook)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sup.Stop() }()

	waitFor(t, 2*time.Second, func() bool {
		return client.Attempts("BTC/USDT", schema.StreamOrderBook) >= 2
	})
	waitFor(t, time.Second, func() bool {
		_, ok := cache.OrderBook(context.Background(), client.Name(), "BTC/USDT")
		return ok
	})

	key := string(client.Name()) + "|BTC/USDT|orderbook"
	waitFor(t, time.Second, func() bool { return len(log.snapshot(key)) >= 5 })
	states := log.snapshot(key)
	want := []State{StateConnecting, StateStreaming, StateError, StateBackoff, StateConnecting}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("transition %d = %s, want %s (full: %v)", i, states[i], s, states)
		}
	}

	log.mu.Lock()
	gap := log.times[key][4].Sub(log.times[key][3])
	log.mu.Unlock()
	if gap < backoff {
		t.Fatalf("reconnected after %v, want at least %v", gap, backoff)
	}
}

func TestCleanCloseReportedAsClosed(t *testing.T) {
	client := fake.New(fake.WithSymbols("BTC/USDT"), fake.WithInterval(time.Hour))
	client.Script("BTC/USDT", schema.StreamOrderBook, fake.Session{End: true}, fake.Session{})
	client.Script("BTC/USDT", schema.StreamTicker, fake.Session{})

	sup, _ := testFixture(t, client, Config{Backoff: 20 * time.Millisecond, StopGrace: time.Second})
	log := newTransitionLog()
	sup.SetStateHook(log.hook)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sup.Stop() }()

	key := string(client.Name()) + "|BTC/USDT|orderbook"
	waitFor(t, time.Second, func() bool { return len(log.snapshot(key)) >= 5 })
	states := log.snapshot(key)
	want := []State{StateConnecting, StateStreaming, StateClosed, StateBackoff, StateConnecting}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("transition %d = %s, want %s (full: %v)", i, states[i], s, states)
		}
	}
	for _, s := range states {
		if s == StateError {
			t.Fatalf("clean close must not report an error state: %v", states)
		}
	}
}

func TestStopCancelsWithoutReconnect(t *testing.T) {
	client := fake.New(fake.WithSymbols("BTC/USDT"))
	client.Script("BTC/USDT", schema.StreamOrderBook, fake.Session{})
	client.Script("BTC/USDT", schema.StreamTicker, fake.Session{})

	sup, _ := testFixture(t, client, Config{Backoff: 10 * time.Millisecond, StopGrace: time.Second})
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return client.Attempts("BTC/USDT", schema.StreamOrderBook) >= 1
	})
	if err := sup.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	attempts := client.Attempts("BTC/USDT", schema.StreamOrderBook)
	time.Sleep(50 * time.Millisecond)
	if got := client.Attempts("BTC/USDT", schema.StreamOrderBook); got != attempts {
		t.Fatalf("streams reconnected after stop: %d -> %d", attempts, got)
	}
}

func TestVenueWithoutUsableSymbolsIsSkipped(t *testing.T) {
	// Venue trades nothing the commission table configures.
	client := fake.New(fake.WithSymbols("DOGE/USDT"))
	sup, _ := testFixture(t, client, Config{Backoff: 10 * time.Millisecond, StopGrace: time.Second})

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sup.Stop() }()

	time.Sleep(30 * time.Millisecond)
	if got := client.Attempts("DOGE/USDT", schema.StreamOrderBook); got != 0 {
		t.Fatalf("expected skipped venue to open no streams, got %d", got)
	}
}

func TestPermanentErrorAbandonsFeed(t *testing.T) {
	client := fake.New(fake.WithSymbols("BTC/USDT"))
	client.Script("BTC/USDT", schema.StreamOrderBook,
		fake.Session{Err: errs.New("fake", errs.CodeVenueRejected, errs.WithMessage("symbol unknown"))})
	client.Script("BTC/USDT", schema.StreamTicker, fake.Session{})

	sup, _ := testFixture(t, client, Config{Backoff: 10 * time.Millisecond, StopGrace: time.Second})
	log := newTransitionLog()
	sup.SetStateHook(log.hook)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sup.Stop() }()

	key := string(client.Name()) + "|BTC/USDT|orderbook"
	waitFor(t, time.Second, func() bool {
		states := log.snapshot(key)
		return len(states) > 0 && states[len(states)-1] == StateStopped
	})
	if got := client.Attempts("BTC/USDT", schema.StreamOrderBook); got != 1 {
		t.Fatalf("rejected feed must not reconnect, attempts = %d", got)
	}
}
