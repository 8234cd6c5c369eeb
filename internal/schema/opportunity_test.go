package schema

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestSpatialOpportunityWireFormat(t *testing.T) {
	vol := decimal.RequireFromString("1250.50")
	opp := SpatialOpportunity{
		Pair:          "BTC/USDT",
		BuyExchange:   "BINANCE",
		SellExchange:  "KRAKEN",
		BuyPrice:      decimal.RequireFromString("64999.99"),
		SellPrice:     decimal.RequireFromString("65100.01"),
		ProfitPercent: decimal.RequireFromString("0.1539"),
		VolumeUSD:     &vol,
	}

	raw, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"pair":"BTC/USDT","buy_exchange":"BINANCE","sell_exchange":"KRAKEN",` +
		`"buy_price":"64999.99","sell_price":"65100.01","profit_percent":"0.1539","volume_usd":"1250.5"}`
	if string(raw) != want {
		t.Fatalf("wire mismatch:\n got %s\nwant %s", raw, want)
	}
}

func TestSpatialOpportunityNullVolume(t *testing.T) {
	opp := SpatialOpportunity{
		Pair:          "ETH/USDT",
		BuyExchange:   "GATE",
		SellExchange:  "MEXC",
		BuyPrice:      decimal.RequireFromString("2500"),
		SellPrice:     decimal.RequireFromString("2510"),
		ProfitPercent: decimal.RequireFromString("0.4"),
	}

	raw, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	val, present := decoded["volume_usd"]
	if !present {
		t.Fatal("volume_usd must be present even when unknown")
	}
	if val != nil {
		t.Fatalf("volume_usd = %v, want null", val)
	}
}

func TestCycleLegTupleEncoding(t *testing.T) {
	leg := CycleLeg{Venue: "BINANCE", Pair: "BTC/USDT", Side: SideBuy}
	raw, err := json.Marshal(leg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(raw), `["BINANCE","BTC/USDT","buy"]`; got != want {
		t.Fatalf("leg tuple = %s, want %s", got, want)
	}

	var back CycleLeg
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != leg {
		t.Fatalf("round trip mismatch: %+v", back)
	}

	if err := json.Unmarshal([]byte(`["BINANCE","BTC/USDT","hold"]`), &back); err == nil {
		t.Fatal("expected unknown side to be rejected")
	}
}

func TestCyclicOpportunityWireFormat(t *testing.T) {
	opp := CyclicOpportunity{
		Cycle: []CycleLeg{
			{Venue: "BINANCE", Pair: "BTC/USDT", Side: SideBuy},
			{Venue: "BINANCE", Pair: "ETH/BTC", Side: SideBuy},
			{Venue: "BINANCE", Pair: "ETH/USDT", Side: SideSell},
		},
		ProfitPercent: decimal.RequireFromString("4"),
	}
	raw, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"cycle":[["BINANCE","BTC/USDT","buy"],["BINANCE","ETH/BTC","buy"],` +
		`["BINANCE","ETH/USDT","sell"]],"profit_percent":"4","volume_usd":null}`
	if string(raw) != want {
		t.Fatalf("wire mismatch:\n got %s\nwant %s", raw, want)
	}
}
