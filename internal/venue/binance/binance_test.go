package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/venue"
)

func TestParseTicker(t *testing.T) {
	payload := []byte(`{"e":"24hrTicker","E":1672515782136,"s":"BTCUSDT",` +
		`"p":"-94.99999800","b":"16589.29000000","B":"40.66","a":"16590.12000000","A":"31.21"}`)

	tob, ok, err := parseTicker(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatal("expected ticker frame to produce a quote")
	}
	if !tob.Bid.Equal(decimal.RequireFromString("16589.29")) {
		t.Fatalf("bid = %s", tob.Bid)
	}
	if !tob.Ask.Equal(decimal.RequireFromString("16590.12")) {
		t.Fatalf("ask = %s", tob.Ask)
	}
	if tob.Timestamp != 1672515782136 {
		t.Fatalf("timestamp = %d", tob.Timestamp)
	}
	if !tob.BidVolume.IsZero() || !tob.AskVolume.IsZero() {
		t.Fatal("ticker quotes must not carry depth volumes")
	}
}

func TestParseTickerSkipsOtherFrames(t *testing.T) {
	if _, ok, err := parseTicker([]byte(`{"result":null,"id":1}`)); ok || err != nil {
		t.Fatalf("expected non-ticker frame to be skipped, ok=%v err=%v", ok, err)
	}
}

func TestParseTickerRejectsBadPrice(t *testing.T) {
	payload := []byte(`{"e":"24hrTicker","E":1,"b":"not-a-number","a":"1.0"}`)
	if _, _, err := parseTicker(payload); err == nil {
		t.Fatal("expected malformed price to error")
	}
}

func TestParseBookTicker(t *testing.T) {
	payload := []byte(`{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`)

	tob, ok, err := parseBookTicker(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatal("expected bookTicker frame to produce a quote")
	}
	if !tob.Bid.Equal(decimal.RequireFromString("25.3519")) || !tob.Ask.Equal(decimal.RequireFromString("25.3652")) {
		t.Fatalf("prices = %s / %s", tob.Bid, tob.Ask)
	}
	if !tob.BidVolume.Equal(decimal.RequireFromString("31.21")) || !tob.AskVolume.Equal(decimal.RequireFromString("40.66")) {
		t.Fatalf("volumes = %s / %s", tob.BidVolume, tob.AskVolume)
	}
	if tob.Timestamp != 0 {
		t.Fatal("bookTicker has no event time; stamping is the stream's job")
	}
}

func TestSymbolsFiltersUntradable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"HALTED","status":"BREAK","baseAsset":"OLD","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"MARGINONLY","status":"TRADING","baseAsset":"MRG","quoteAsset":"USDT","isSpotTradingAllowed":false}
		]}`))
	}))
	defer server.Close()

	c := New(venue.Options{Logger: zerolog.Nop()})
	c.restBase = server.URL

	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("expected 2 tradable symbols, got %v", symbols)
	}
	if symbols[0] != "BTC/USDT" || symbols[1] != "ETH/USDT" {
		t.Fatalf("unexpected symbols %v", symbols)
	}
}

func TestNativeSymbol(t *testing.T) {
	native, err := nativeSymbol("BTC/USDT")
	if err != nil || native != "BTCUSDT" {
		t.Fatalf("nativeSymbol = %q, %v", native, err)
	}
	if _, err := nativeSymbol("BTCUSDT"); err == nil {
		t.Fatal("expected malformed symbol to error")
	}
}
