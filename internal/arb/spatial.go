// Package arb implements the two arbitrage finders: a pairwise cross-venue
// scan and a Bellman-Ford negative-cycle search over a logarithmic rate graph.
// Both read the freshness cache and the commission table, and emit ranked,
// fee-adjusted opportunities.
package arb

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/commission"
	"github.com/arbscan/arbscan/internal/marketcache"
	"github.com/arbscan/arbscan/internal/schema"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Config tunes a finder.
type Config struct {
	// MinProfitPercent is the reporting threshold; opportunities below it are
	// dropped.
	MinProfitPercent decimal.Decimal
	// Venues restricts the scan. Empty means every venue in the fee table.
	Venues []schema.VenueID
}

func (c Config) venues(fees *commission.Table) []schema.VenueID {
	if len(c.Venues) > 0 {
		return c.Venues
	}
	return fees.Venues()
}

// Spatial scans for two-venue price discrepancies on single symbols.
type Spatial struct {
	cache     marketcache.Store
	fees      *commission.Table
	minProfit decimal.Decimal
	venues    []schema.VenueID
	logger    zerolog.Logger
}

// NewSpatial constructs the pairwise finder.
func NewSpatial(cache marketcache.Store, fees *commission.Table, cfg Config, logger zerolog.Logger) *Spatial {
	return &Spatial{
		cache:     cache,
		fees:      fees,
		minProfit: cfg.MinProfitPercent,
		venues:    cfg.venues(fees),
		logger:    logger.With().Str("component", "arb.spatial").Logger(),
	}
}

// Find runs one scan: every symbol, every ordered venue pair trading it, both
// directions. Results are sorted by profit descending with a deterministic
// (pair, buy venue, sell venue) tie-break.
func (f *Spatial) Find(ctx context.Context) ([]schema.SpatialOpportunity, error) {
	bySymbol := make(map[schema.Symbol][]schema.VenueID)
	var symbols []schema.Symbol
	for _, v := range f.venues {
		for _, s := range f.fees.SymbolsFor(v) {
			if len(bySymbol[s]) == 0 {
				symbols = append(symbols, s)
			}
			bySymbol[s] = append(bySymbol[s], v)
		}
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	var out []schema.SpatialOpportunity
	for _, symbol := range symbols {
		candidates := bySymbol[symbol]
		for _, buyVenue := range candidates {
			buy, ok := f.quote(ctx, buyVenue, symbol)
			if !ok {
				continue
			}
			for _, sellVenue := range candidates {
				if sellVenue == buyVenue {
					continue
				}
				sell, ok := f.quote(ctx, sellVenue, symbol)
				if !ok {
					continue
				}
				if opp, ok := f.evaluate(symbol, buyVenue, sellVenue, buy, sell); ok {
					out = append(out, opp)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ProfitPercent.Cmp(out[j].ProfitPercent); c != 0 {
			return c > 0
		}
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		if out[i].BuyExchange != out[j].BuyExchange {
			return out[i].BuyExchange < out[j].BuyExchange
		}
		return out[i].SellExchange < out[j].SellExchange
	})
	return out, nil
}

// quote prefers the depth snapshot; a ticker fallback carries no volumes, so
// its USD sizing stays undisclosed downstream.
func (f *Spatial) quote(ctx context.Context, v schema.VenueID, symbol schema.Symbol) (schema.TopOfBook, bool) {
	if tob, ok := f.cache.OrderBook(ctx, v, symbol); ok {
		return tob, true
	}
	tob, ok := f.cache.Ticker(ctx, v, symbol)
	if !ok {
		return schema.TopOfBook{}, false
	}
	tob.BidVolume = decimal.Zero
	tob.AskVolume = decimal.Zero
	return tob, true
}

func (f *Spatial) evaluate(symbol schema.Symbol, buyVenue, sellVenue schema.VenueID, buy, sell schema.TopOfBook) (schema.SpatialOpportunity, bool) {
	if !buy.Ask.IsPositive() || !sell.Bid.IsPositive() {
		return schema.SpatialOpportunity{}, false
	}
	feeBuy := f.fees.Fee(buyVenue, symbol, schema.SideBuy)
	feeSell := f.fees.Fee(sellVenue, symbol, schema.SideSell)

	cost := buy.Ask.Mul(decimal.NewFromInt(1).Add(feeBuy))
	revenue := sell.Bid.Mul(decimal.NewFromInt(1).Sub(feeSell))
	if revenue.LessThanOrEqual(cost) {
		return schema.SpatialOpportunity{}, false
	}
	profit := revenue.Sub(cost).Div(cost).Mul(hundred)
	if profit.LessThan(f.minProfit) {
		return schema.SpatialOpportunity{}, false
	}

	opp := schema.SpatialOpportunity{
		Pair:          symbol,
		BuyExchange:   buyVenue.Upper(),
		SellExchange:  sellVenue.Upper(),
		BuyPrice:      buy.Ask,
		SellPrice:     sell.Bid,
		ProfitPercent: profit,
	}
	vol := decimal.Min(buy.AskVolume, sell.BidVolume)
	if vol.IsPositive() {
		usd := vol.Mul(buy.Ask.Add(sell.Bid)).Div(two)
		opp.VolumeUSD = &usd
	}
	return opp, true
}
