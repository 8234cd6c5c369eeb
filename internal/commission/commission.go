// Package commission holds the immutable per-venue taker fee table consulted
// by the arbitrage finders.
package commission

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/schema"
)

// Fee-kind keys as they appear in venue commission files.
const (
	kindTakerBuy   = "taker_buy_rate"
	kindTakerSell  = "taker_sell_rate"
	kindTakerOrder = "taker_order_rate"
)

var hundred = decimal.NewFromInt(100)

// Raw is the decoded commission configuration: venue → symbol → fee kind →
// human-readable rate string such as "0.10%".
type Raw map[string]map[string]map[string]string

// ParseRate converts a human fee string into a fractional rate: "0.1%" yields
// 0.001. Absent and malformed inputs both yield zero.
func ParseRate(s string) decimal.Decimal {
	rate, _ := parseRate(s)
	return rate
}

// parseRate reports ok=false only for malformed inputs; absent values are a
// well-formed zero.
func parseRate(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	num, found := strings.CutSuffix(s, "%")
	if !found {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(num))
	if err != nil {
		return decimal.Zero, false
	}
	if d.IsNegative() || d.GreaterThanOrEqual(hundred) {
		return decimal.Zero, false
	}
	return d.Div(hundred), true
}

type rates struct {
	buy     decimal.Decimal
	sell    decimal.Decimal
	order   decimal.Decimal
	sellSet bool
}

// Table is the in-memory fee lookup. Built once at startup, read-only after.
type Table struct {
	venues map[schema.VenueID]map[schema.Symbol]rates
}

// NewTable builds a fee table from raw configuration. Unusable symbol keys are
// skipped and each distinct malformed rate string is logged once.
func NewTable(raw Raw, logger zerolog.Logger) *Table {
	t := &Table{venues: make(map[schema.VenueID]map[schema.Symbol]rates, len(raw))}
	warned := make(map[string]struct{})
	parse := func(venue schema.VenueID, s string) decimal.Decimal {
		rate, ok := parseRate(s)
		if !ok {
			if _, seen := warned[s]; !seen {
				warned[s] = struct{}{}
				logger.Warn().Str("venue", string(venue)).Str("rate", s).Msg("unparseable fee rate, using zero")
			}
		}
		return rate
	}

	for rawVenue, symbols := range raw {
		venue := schema.NormalizeVenue(rawVenue)
		if err := venue.Validate(); err != nil {
			logger.Warn().Str("venue", rawVenue).Msg("skipping commissions for invalid venue id")
			continue
		}
		bySymbol := make(map[schema.Symbol]rates, len(symbols))
		for rawSymbol, kinds := range symbols {
			symbol, err := schema.ParseSymbol(rawSymbol)
			if err != nil {
				logger.Warn().Str("venue", string(venue)).Str("symbol", rawSymbol).Msg("skipping commissions for invalid symbol")
				continue
			}
			r := rates{
				buy:     parse(venue, kinds[kindTakerBuy]),
				sell:    parse(venue, kinds[kindTakerSell]),
				order:   parse(venue, kinds[kindTakerOrder]),
				sellSet: strings.TrimSpace(kinds[kindTakerSell]) != "",
			}
			bySymbol[symbol] = r
		}
		t.venues[venue] = bySymbol
	}
	return t
}

// Fee returns the taker fee rate for one leg, else zero. Sell-side lookups
// fall back to the venue's generic taker order rate when no explicit sell
// rate is configured.
func (t *Table) Fee(venue schema.VenueID, symbol schema.Symbol, side schema.Side) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	r, ok := t.venues[venue][symbol]
	if !ok {
		return decimal.Zero
	}
	switch side {
	case schema.SideBuy:
		return r.buy
	case schema.SideSell:
		if r.sellSet {
			return r.sell
		}
		return r.order
	default:
		return decimal.Zero
	}
}

// SymbolsFor returns the symbols configured for the venue, sorted.
func (t *Table) SymbolsFor(venue schema.VenueID) []schema.Symbol {
	if t == nil {
		return nil
	}
	bySymbol := t.venues[venue]
	if len(bySymbol) == 0 {
		return nil
	}
	out := make([]schema.Symbol, 0, len(bySymbol))
	for s := range bySymbol {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Venues returns every venue with at least one configured symbol, sorted.
func (t *Table) Venues() []schema.VenueID {
	if t == nil {
		return nil
	}
	out := make([]schema.VenueID, 0, len(t.venues))
	for v, symbols := range t.venues {
		if len(symbols) == 0 {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
