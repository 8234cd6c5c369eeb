package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// SpatialOpportunity is a two-venue price discrepancy on a single symbol,
// fee-adjusted. Prices and profit marshal as decimal strings; VolumeUSD is
// null when either side lacked depth volumes.
type SpatialOpportunity struct {
	Pair          Symbol           `json:"pair"`
	BuyExchange   string           `json:"buy_exchange"`
	SellExchange  string           `json:"sell_exchange"`
	BuyPrice      decimal.Decimal  `json:"buy_price"`
	SellPrice     decimal.Decimal  `json:"sell_price"`
	ProfitPercent decimal.Decimal  `json:"profit_percent"`
	VolumeUSD     *decimal.Decimal `json:"volume_usd"`
}

// CycleLeg is one step of a cyclic route. On the wire it is the 3-tuple
// [venue, pair, side] in execution order.
type CycleLeg struct {
	Venue string
	Pair  Symbol
	Side  Side
}

// MarshalJSON encodes the leg as a JSON array of three strings.
func (l CycleLeg) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{l.Venue, string(l.Pair), string(l.Side)})
}

// UnmarshalJSON decodes the [venue, pair, side] tuple form.
func (l *CycleLeg) UnmarshalJSON(data []byte) error {
	var tuple [3]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("cycle leg: %w", err)
	}
	side := Side(tuple[2])
	if side != SideBuy && side != SideSell {
		return fmt.Errorf("cycle leg: unknown side %q", tuple[2])
	}
	l.Venue = tuple[0]
	l.Pair = Symbol(tuple[1])
	l.Side = side
	return nil
}

// CyclicOpportunity is a closed multi-leg route that ends holding more of the
// starting currency than it began with, fees included.
type CyclicOpportunity struct {
	Cycle         []CycleLeg       `json:"cycle"`
	ProfitPercent decimal.Decimal  `json:"profit_percent"`
	VolumeUSD     *decimal.Decimal `json:"volume_usd"`
}
