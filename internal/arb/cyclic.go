package arb

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/internal/commission"
	"github.com/arbscan/arbscan/internal/marketcache"
	"github.com/arbscan/arbscan/internal/schema"
)

const (
	minCycleLegs = 3
	maxCycleLegs = 8

	// relaxEpsilon guards the detection pass against float noise masquerading
	// as a negative cycle.
	relaxEpsilon = 1e-12
)

// Cyclic finds closed currency cycles whose fee-adjusted rate product exceeds
// unity, via negative-cycle detection on a -log rate multigraph.
type Cyclic struct {
	cache     marketcache.Store
	fees      *commission.Table
	minProfit decimal.Decimal
	venues    []schema.VenueID
	logger    zerolog.Logger
}

// NewCyclic constructs the cycle finder.
func NewCyclic(cache marketcache.Store, fees *commission.Table, cfg Config, logger zerolog.Logger) *Cyclic {
	return &Cyclic{
		cache:     cache,
		fees:      fees,
		minProfit: cfg.MinProfitPercent,
		venues:    cfg.venues(fees),
		logger:    logger.With().Str("component", "arb.cyclic").Logger(),
	}
}

// edge is one currency conversion. The arena is a flat slice because
// Bellman-Ford relaxes edges in arbitrary order and wants linear scans.
type edge struct {
	venue  schema.VenueID
	pair   schema.Symbol
	side   schema.Side
	from   int
	to     int
	weight float64
	// price is the executable price; volume is depth in base units, zero when
	// undisclosed.
	price  decimal.Decimal
	volume decimal.Decimal
}

type graph struct {
	names []string
	ids   map[string]int
	edges []edge
}

func (g *graph) intern(currency string) int {
	if id, ok := g.ids[currency]; ok {
		return id
	}
	id := len(g.names)
	g.names = append(g.names, currency)
	g.ids[currency] = id
	return id
}

// Find builds the rate graph from fresh depth snapshots and reports profitable
// cycles, deduplicated and ranked by profit.
func (f *Cyclic) Find(ctx context.Context) ([]schema.CyclicOpportunity, error) {
	g := f.buildGraph(ctx)
	if len(g.edges) == 0 {
		return nil, nil
	}

	found := make(map[string]schema.CyclicOpportunity)
	for src := range g.names {
		f.searchFrom(g, src, found)
	}

	out := make([]schema.CyclicOpportunity, 0, len(found))
	for _, opp := range found {
		out = append(out, opp)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ProfitPercent.Cmp(out[j].ProfitPercent); c != 0 {
			return c > 0
		}
		return cycleKey(out[i].Cycle) < cycleKey(out[j].Cycle)
	})
	return out, nil
}

// buildGraph adds a buy and a sell edge per (venue, pair) holding a fresh
// depth snapshot. Fee math stays in Decimal until the single log conversion.
func (f *Cyclic) buildGraph(ctx context.Context) *graph {
	g := &graph{ids: make(map[string]int)}
	one := decimal.NewFromInt(1)
	for _, v := range f.venues {
		for _, symbol := range f.fees.SymbolsFor(v) {
			tob, ok := f.cache.OrderBook(ctx, v, symbol)
			if !ok || !tob.Valid() {
				continue
			}
			base, quote, ok := symbol.Split()
			if !ok {
				continue
			}
			baseID, quoteID := g.intern(base), g.intern(quote)

			// Buying BASE at ask with fee fBuy turns 1 QUOTE into
			// (1-fBuy)/ask BASE.
			buyRate := one.Sub(f.fees.Fee(v, symbol, schema.SideBuy)).Div(tob.Ask)
			if buyRate.IsPositive() {
				g.edges = append(g.edges, edge{
					venue: v, pair: symbol, side: schema.SideBuy,
					from: quoteID, to: baseID,
					weight: -math.Log(buyRate.InexactFloat64()),
					price:  tob.Ask, volume: tob.AskVolume,
				})
			}

			// Selling 1 BASE at bid with fee fSell yields bid*(1-fSell) QUOTE.
			sellRate := tob.Bid.Mul(one.Sub(f.fees.Fee(v, symbol, schema.SideSell)))
			if sellRate.IsPositive() {
				g.edges = append(g.edges, edge{
					venue: v, pair: symbol, side: schema.SideSell,
					from: baseID, to: quoteID,
					weight: -math.Log(sellRate.InexactFloat64()),
					price:  tob.Bid, volume: tob.BidVolume,
				})
			}
		}
	}
	return g
}

// searchFrom runs Bellman-Ford from one source and records every negative
// cycle the detection pass exposes.
func (f *Cyclic) searchFrom(g *graph, src int, found map[string]schema.CyclicOpportunity) {
	n := len(g.names)
	dist := make([]float64, n)
	predEdge := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		predEdge[i] = -1
	}
	dist[src] = 0

	for round := 0; round < n-1; round++ {
		improved := false
		for i, e := range g.edges {
			if math.IsInf(dist[e.from], 1) {
				continue
			}
			if d := dist[e.from] + e.weight; d < dist[e.to] {
				dist[e.to] = d
				predEdge[e.to] = i
				improved = true
			}
		}
		if !improved {
			break
		}
	}

	for _, e := range g.edges {
		if math.IsInf(dist[e.from], 1) {
			continue
		}
		if dist[e.from]+e.weight >= dist[e.to]-relaxEpsilon {
			continue
		}
		cycle := traceCycle(g, predEdge, e.to)
		if cycle == nil {
			continue
		}
		if opp, key, ok := f.assemble(g, cycle); ok {
			if _, dup := found[key]; !dup {
				found[key] = opp
			}
		}
	}
}

// traceCycle walks predecessors from a vertex relaxed on the detection pass.
// Walking |V| hops lands inside the cycle; a second walk collects its edges,
// reversed into execution order.
func traceCycle(g *graph, predEdge []int, start int) []int {
	x := start
	for i := 0; i < len(g.names); i++ {
		if predEdge[x] < 0 {
			return nil
		}
		x = g.edges[predEdge[x]].from
	}
	var cycle []int
	for v := x; ; {
		idx := predEdge[v]
		if idx < 0 || len(cycle) > len(g.edges) {
			return nil
		}
		cycle = append(cycle, idx)
		v = g.edges[idx].from
		if v == x {
			break
		}
	}
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

// assemble converts a traced cycle into an opportunity, canonicalized on its
// lexicographically smallest rotation so duplicates across sources collapse.
func (f *Cyclic) assemble(g *graph, cycle []int) (schema.CyclicOpportunity, string, bool) {
	if len(cycle) < minCycleLegs || len(cycle) > maxCycleLegs {
		return schema.CyclicOpportunity{}, "", false
	}

	legs := make([]schema.CycleLeg, len(cycle))
	sum := 0.0
	for i, idx := range cycle {
		e := g.edges[idx]
		legs[i] = schema.CycleLeg{Venue: string(e.venue), Pair: e.pair, Side: e.side}
		sum += e.weight
	}
	legs = canonicalRotation(legs)

	// exp(-Σw) is the fee-adjusted rate product; round at 1e-8 before leaving
	// float territory.
	factor := math.Round(math.Exp(-sum)*1e8) / 1e8
	if factor <= 1 {
		return schema.CyclicOpportunity{}, "", false
	}
	profit := decimal.NewFromFloat(factor).Sub(decimal.NewFromInt(1)).Mul(hundred)
	if profit.LessThan(f.minProfit) {
		return schema.CyclicOpportunity{}, "", false
	}

	opp := schema.CyclicOpportunity{
		Cycle:         legs,
		ProfitPercent: profit,
		VolumeUSD:     cycleVolume(g, cycle),
	}
	return opp, cycleKey(legs), true
}

// cycleVolume is a rough sizing: the thinnest edge volume times the mean cycle
// price. Any undisclosed edge volume makes the whole sizing undisclosed.
func cycleVolume(g *graph, cycle []int) *decimal.Decimal {
	minVol := decimal.Zero
	priceSum := decimal.Zero
	for i, idx := range cycle {
		e := g.edges[idx]
		if !e.volume.IsPositive() {
			return nil
		}
		if i == 0 || e.volume.LessThan(minVol) {
			minVol = e.volume
		}
		priceSum = priceSum.Add(e.price)
	}
	usd := minVol.Mul(priceSum.Div(decimal.NewFromInt(int64(len(cycle)))))
	return &usd
}

func canonicalRotation(legs []schema.CycleLeg) []schema.CycleLeg {
	best := 0
	for i := 1; i < len(legs); i++ {
		if legLess(legs, i, best) {
			best = i
		}
	}
	if best == 0 {
		return legs
	}
	rotated := make([]schema.CycleLeg, 0, len(legs))
	rotated = append(rotated, legs[best:]...)
	rotated = append(rotated, legs[:best]...)
	return rotated
}

// legLess compares the rotations starting at i and j lexicographically.
func legLess(legs []schema.CycleLeg, i, j int) bool {
	n := len(legs)
	for k := 0; k < n; k++ {
		a := legString(legs[(i+k)%n])
		b := legString(legs[(j+k)%n])
		if a != b {
			return a < b
		}
	}
	return false
}

func legString(l schema.CycleLeg) string {
	return l.Venue + "|" + string(l.Pair) + "|" + string(l.Side)
}

func cycleKey(legs []schema.CycleLeg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = legString(l)
	}
	return strings.Join(parts, ";")
}
