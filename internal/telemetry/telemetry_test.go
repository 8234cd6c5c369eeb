package telemetry

import (
	"context"
	"testing"

	"github.com/arbscan/arbscan/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "arbscan-test"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		insecure bool
	}{
		{"http://localhost:4318", "localhost:4318", true},
		{"https://otel.example.com", "otel.example.com", false},
		{"collector:4318", "collector:4318", true},
	}
	for _, tc := range cases {
		host, insecure, err := parseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tc.raw, err)
		}
		if host != tc.host || insecure != tc.insecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v, want %q/%v", tc.raw, host, insecure, tc.host, tc.insecure)
		}
	}
}

func TestStreamAttributes(t *testing.T) {
	attrs := StreamAttributes("binance", "BTC/USDT", "ticker")
	if len(attrs) != 3 {
		t.Fatalf("len = %d", len(attrs))
	}
	if attrs[0].Key != AttrVenue || attrs[0].Value.AsString() != "binance" {
		t.Fatalf("venue attr = %v", attrs[0])
	}
	if attrs[1].Key != AttrSymbol || attrs[2].Key != AttrStream {
		t.Fatalf("attrs = %v", attrs)
	}
}

func TestCacheAttributes(t *testing.T) {
	attrs := CacheAttributes("orderbook", "hit")
	if len(attrs) != 2 {
		t.Fatalf("len = %d", len(attrs))
	}
	if attrs[0].Key != AttrStream || attrs[0].Value.AsString() != "orderbook" {
		t.Fatalf("stream attr = %v", attrs[0])
	}
	if attrs[1].Key != AttrResult || attrs[1].Value.AsString() != "hit" {
		t.Fatalf("result attr = %v", attrs[1])
	}
}
