package bybit

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

// envelope is the common v5 frame shape for both control acks and topic pushes.
type envelope struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// control filters non-topic frames. A subscribe rejection is terminal.
func control(evt envelope) (skip bool, err error) {
	if evt.Op != "" {
		if evt.Success != nil && !*evt.Success {
			return false, errs.New(string(venueName), errs.CodeVenueRejected,
				errs.WithMessage("subscription refused"), errs.WithRawMessage(evt.RetMsg))
		}
		return true, nil
	}
	if evt.Topic == "" || len(evt.Data) == 0 {
		return true, nil
	}
	return false, nil
}

type tickerData struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

// parseTicker normalizes a spot tickers push. Spot tickers are always full
// snapshots, so no merge state is needed; depth sizes are deliberately
// dropped, matching the ticker-quotes-carry-no-volume policy.
func parseTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt envelope
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("ticker frame undecodable", err)
	}
	if skip, err := control(evt); skip || err != nil {
		return schema.TopOfBook{}, false, err
	}
	var tick tickerData
	if err := json.Unmarshal(evt.Data, &tick); err != nil {
		return schema.TopOfBook{}, false, invalid("ticker data undecodable", err)
	}
	if tick.Bid1Price == "" || tick.Ask1Price == "" {
		return schema.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(tick.Bid1Price)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad bid price "+tick.Bid1Price, err)
	}
	ask, err := decimal.NewFromString(tick.Ask1Price)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad ask price "+tick.Ask1Price, err)
	}
	return schema.TopOfBook{Bid: bid, Ask: ask, Timestamp: evt.TS}, true, nil
}

type bookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
}

type bookSide struct {
	price decimal.Decimal
	size  decimal.Decimal
	known bool
}

// newBookParser returns a stateful parser for the orderbook.1 topic. The venue
// sends one snapshot then deltas where an omitted side is unchanged and a zero
// size removes the level. Parsers are per-stream and driven by a single read
// loop, so the merge state needs no locking.
func newBookParser() func(data []byte) (schema.TopOfBook, bool, error) {
	var bid, ask bookSide
	return func(data []byte) (schema.TopOfBook, bool, error) {
		var evt envelope
		if err := json.Unmarshal(data, &evt); err != nil {
			return schema.TopOfBook{}, false, invalid("orderbook frame undecodable", err)
		}
		if skip, err := control(evt); skip || err != nil {
			return schema.TopOfBook{}, false, err
		}
		var book bookData
		if err := json.Unmarshal(evt.Data, &book); err != nil {
			return schema.TopOfBook{}, false, invalid("orderbook data undecodable", err)
		}
		if evt.Type == "snapshot" {
			bid, ask = bookSide{}, bookSide{}
		}
		if err := bid.apply(book.Bids); err != nil {
			return schema.TopOfBook{}, false, err
		}
		if err := ask.apply(book.Asks); err != nil {
			return schema.TopOfBook{}, false, err
		}
		if !bid.known || !ask.known {
			return schema.TopOfBook{}, false, nil
		}
		return schema.TopOfBook{
			Bid:       bid.price,
			Ask:       ask.price,
			BidVolume: bid.size,
			AskVolume: ask.size,
			Timestamp: evt.TS,
		}, true, nil
	}
}

func (s *bookSide) apply(levels [][2]string) error {
	if len(levels) == 0 {
		return nil
	}
	price, err := decimal.NewFromString(levels[0][0])
	if err != nil {
		return invalid("bad level price "+levels[0][0], err)
	}
	size, err := decimal.NewFromString(levels[0][1])
	if err != nil {
		return invalid("bad level size "+levels[0][1], err)
	}
	if size.IsZero() {
		*s = bookSide{}
		return nil
	}
	s.price = price
	s.size = size
	s.known = true
	return nil
}

func invalid(msg string, cause error) error {
	return errs.New(string(venueName), errs.CodeInvalidMessage, errs.WithMessage(msg), errs.WithCause(cause))
}
