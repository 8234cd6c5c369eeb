package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/publish"
	"github.com/arbscan/arbscan/internal/schema"
)

type spatialFunc func(ctx context.Context) ([]schema.SpatialOpportunity, error)

func (f spatialFunc) Find(ctx context.Context) ([]schema.SpatialOpportunity, error) { return f(ctx) }

type cyclicFunc func(ctx context.Context) ([]schema.CyclicOpportunity, error)

func (f cyclicFunc) Find(ctx context.Context) ([]schema.CyclicOpportunity, error) { return f(ctx) }

func fixture(t *testing.T) (*httptest.Server, *publish.Bus) {
	t.Helper()
	bus := publish.NewBus(4, zerolog.Nop())
	t.Cleanup(bus.Close)

	pub := publish.New(
		spatialFunc(func(context.Context) ([]schema.SpatialOpportunity, error) {
			return []schema.SpatialOpportunity{{
				Pair:          "BTC/USDT",
				BuyExchange:   "BYBIT",
				SellExchange:  "BINANCE",
				BuyPrice:      decimal.RequireFromString("48000"),
				SellPrice:     decimal.RequireFromString("49000"),
				ProfitPercent: decimal.RequireFromString("2.0833"),
			}}, nil
		}),
		cyclicFunc(func(context.Context) ([]schema.CyclicOpportunity, error) { return nil, nil }),
		bus, publish.Config{}, zerolog.Nop())

	srv := httptest.NewServer(NewHandler(pub, bus, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, bus
}

func TestSpatialEndpoint(t *testing.T) {
	srv, _ := fixture(t)

	resp, err := http.Get(srv.URL + "/api/v1/arbitrage/cex_cex")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var decoded []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["buy_exchange"] != "BYBIT" {
		t.Fatalf("body = %v", decoded)
	}
	if decoded[0]["volume_usd"] != nil {
		t.Fatalf("volume_usd = %v, want null", decoded[0]["volume_usd"])
	}
}

func TestCyclicEndpointEmptyArray(t *testing.T) {
	srv, _ := fixture(t)

	resp, err := http.Get(srv.URL + "/api/v1/arbitrage/cex_cex_cex")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("body = %q, want []", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := fixture(t)

	resp, err := http.Post(srv.URL+"/api/v1/arbitrage/cex_cex", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := fixture(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebsocketBridge(t *testing.T) {
	srv, bus := fixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/arbitrage/cex_cex"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	// The subscription registers during the upgrade; give the handler a beat.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(ctx, publish.FeedSpatial, []byte(`[{"pair":"BTC/USDT"}]`))

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(payload), "BTC/USDT") {
		t.Fatalf("payload = %s", payload)
	}
}
