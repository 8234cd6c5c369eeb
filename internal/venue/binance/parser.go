package binance

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

type tickerEvent struct {
	Event string `json:"e"`
	Time  int64  `json:"E"`
	Bid   string `json:"b"`
	Ask   string `json:"a"`
}

// parseTicker normalizes a 24hrTicker event. Best bid/ask only; the summary
// stream carries no depth sizes worth trusting for execution volume.
func parseTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt tickerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("ticker frame undecodable", err)
	}
	if evt.Event != "24hrTicker" {
		return schema.TopOfBook{}, false, nil
	}
	bid, ask, err := parsePrices(evt.Bid, evt.Ask)
	if err != nil {
		return schema.TopOfBook{}, false, err
	}
	return schema.TopOfBook{Bid: bid, Ask: ask, Timestamp: evt.Time}, true, nil
}

type bookTickerEvent struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

// parseBookTicker normalizes a bookTicker event. The payload carries no event
// time; the stream stamps receive time.
func parseBookTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt bookTickerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("bookTicker frame undecodable", err)
	}
	if evt.Symbol == "" || evt.Bid == "" || evt.Ask == "" {
		return schema.TopOfBook{}, false, nil
	}
	bid, ask, err := parsePrices(evt.Bid, evt.Ask)
	if err != nil {
		return schema.TopOfBook{}, false, err
	}
	tob := schema.TopOfBook{Bid: bid, Ask: ask}
	if evt.BidQty != "" {
		if qty, qerr := decimal.NewFromString(evt.BidQty); qerr == nil {
			tob.BidVolume = qty
		}
	}
	if evt.AskQty != "" {
		if qty, qerr := decimal.NewFromString(evt.AskQty); qerr == nil {
			tob.AskVolume = qty
		}
	}
	return tob, true, nil
}

func parsePrices(rawBid, rawAsk string) (bid, ask decimal.Decimal, err error) {
	bid, err = decimal.NewFromString(rawBid)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, invalid("bad bid price "+rawBid, err)
	}
	ask, err = decimal.NewFromString(rawAsk)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, invalid("bad ask price "+rawAsk, err)
	}
	return bid, ask, nil
}

func invalid(msg string, cause error) error {
	return errs.New(string(venueName), errs.CodeInvalidMessage, errs.WithMessage(msg), errs.WithCause(cause))
}
