package commission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/schema"
)

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.1%", "0.001"},
		{"0.10%", "0.001"},
		{" 0.25 % ", "0.0025"},
		{"1%", "0.01"},
		{"0%", "0"},
		{"", "0"},
		{"0.001", "0"},
		{"abc%", "0"},
		{"-0.1%", "0"},
		{"150%", "0"},
	}
	for _, tc := range cases {
		got := ParseRate(tc.in)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("ParseRate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func testTable(t *testing.T) *Table {
	t.Helper()
	raw := Raw{
		"binance": {
			"BTC/USDT": {
				"taker_buy_rate":  "0.10%",
				"taker_sell_rate": "0.10%",
			},
			"ETH/USDT": {
				"taker_buy_rate":   "0.20%",
				"taker_order_rate": "0.15%",
			},
		},
		"Bybit": {
			"BTC/USDT": {
				"taker_buy_rate":   "0.06%",
				"taker_sell_rate":  "",
				"taker_order_rate": "0.08%",
			},
		},
	}
	return NewTable(raw, zerolog.Nop())
}

func TestFeeLookup(t *testing.T) {
	table := testTable(t)

	if got := table.Fee("binance", "BTC/USDT", schema.SideBuy); !got.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("buy fee = %s, want 0.001", got)
	}
	if got := table.Fee("binance", "BTC/USDT", schema.SideSell); !got.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("sell fee = %s, want 0.001", got)
	}
	if got := table.Fee("binance", "XRP/USDT", schema.SideBuy); !got.IsZero() {
		t.Fatalf("unknown symbol fee = %s, want 0", got)
	}
	if got := table.Fee("kraken", "BTC/USDT", schema.SideSell); !got.IsZero() {
		t.Fatalf("unknown venue fee = %s, want 0", got)
	}
}

func TestSellFallsBackToOrderRate(t *testing.T) {
	table := testTable(t)

	// No sell rate configured at all.
	if got := table.Fee("binance", "ETH/USDT", schema.SideSell); !got.Equal(decimal.RequireFromString("0.0015")) {
		t.Fatalf("sell fee = %s, want order-rate fallback 0.0015", got)
	}
	// Empty sell rate counts as absent.
	if got := table.Fee("bybit", "BTC/USDT", schema.SideSell); !got.Equal(decimal.RequireFromString("0.0008")) {
		t.Fatalf("sell fee = %s, want order-rate fallback 0.0008", got)
	}
}

func TestVenueAndSymbolNormalization(t *testing.T) {
	table := testTable(t)

	symbols := table.SymbolsFor("bybit")
	if len(symbols) != 1 || symbols[0] != "BTC/USDT" {
		t.Fatalf("SymbolsFor(bybit) = %v", symbols)
	}

	venues := table.Venues()
	want := []schema.VenueID{"binance", "bybit"}
	if len(venues) != len(want) {
		t.Fatalf("Venues() = %v, want %v", venues, want)
	}
	for i := range want {
		if venues[i] != want[i] {
			t.Fatalf("Venues() = %v, want %v", venues, want)
		}
	}
}

func TestSymbolsForSorted(t *testing.T) {
	table := testTable(t)
	symbols := table.SymbolsFor("binance")
	if len(symbols) != 2 || symbols[0] != "BTC/USDT" || symbols[1] != "ETH/USDT" {
		t.Fatalf("SymbolsFor(binance) = %v, want sorted [BTC/USDT ETH/USDT]", symbols)
	}
}

func TestNilTableIsEmpty(t *testing.T) {
	var table *Table
	if got := table.Fee("binance", "BTC/USDT", schema.SideBuy); !got.IsZero() {
		t.Fatalf("nil table fee = %s, want 0", got)
	}
	if got := table.SymbolsFor("binance"); got != nil {
		t.Fatalf("nil table symbols = %v, want nil", got)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeFile("binance.json", `{"BTC/USDT":{"taker_buy_rate":"0.10%","taker_sell_rate":"0.10%"}}`)
	writeFile("bybit.json", `{"BTC/USDT":{"taker_buy_rate":"0.06%"}}`)
	writeFile("broken.json", `{not json`)
	writeFile("notes.txt", `ignore me`)

	raw, err := LoadDir(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 venues, got %d (%v)", len(raw), raw)
	}
	if raw["binance"]["BTC/USDT"]["taker_buy_rate"] != "0.10%" {
		t.Fatalf("unexpected binance rates: %v", raw["binance"])
	}

	table := NewTable(raw, zerolog.Nop())
	if got := table.Fee("bybit", "BTC/USDT", schema.SideBuy); !got.Equal(decimal.RequireFromString("0.0006")) {
		t.Fatalf("loaded fee = %s, want 0.0006", got)
	}
}

func TestLoadDirUnreadable(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "missing"), zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
