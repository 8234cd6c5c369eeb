package gate

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

type envelope struct {
	Time    int64  `json:"time"`
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result json.RawMessage `json:"result"`
}

// control filters acks and pongs. A subscribe error is terminal.
func control(evt envelope) (skip bool, err error) {
	if evt.Error != nil {
		return false, errs.New(string(venueName), errs.CodeVenueRejected,
			errs.WithMessage("subscription refused"), errs.WithRawMessage(evt.Error.Message))
	}
	if evt.Event != "update" || len(evt.Result) == 0 {
		return true, nil
	}
	return false, nil
}

type tickerResult struct {
	CurrencyPair string `json:"currency_pair"`
	LowestAsk    string `json:"lowest_ask"`
	HighestBid   string `json:"highest_bid"`
}

// parseTicker normalizes a spot.tickers update.
func parseTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt envelope
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("ticker frame undecodable", err)
	}
	if skip, err := control(evt); skip || err != nil {
		return schema.TopOfBook{}, false, err
	}
	var tick tickerResult
	if err := json.Unmarshal(evt.Result, &tick); err != nil {
		return schema.TopOfBook{}, false, invalid("ticker result undecodable", err)
	}
	if tick.HighestBid == "" || tick.LowestAsk == "" {
		return schema.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(tick.HighestBid)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad bid price "+tick.HighestBid, err)
	}
	ask, err := decimal.NewFromString(tick.LowestAsk)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad ask price "+tick.LowestAsk, err)
	}
	return schema.TopOfBook{Bid: bid, Ask: ask, Timestamp: evt.Time * 1000}, true, nil
}

type bookTickerResult struct {
	TimeMs  int64  `json:"t"`
	Symbol  string `json:"s"`
	Bid     string `json:"b"`
	BidSize string `json:"B"`
	Ask     string `json:"a"`
	AskSize string `json:"A"`
}

// parseBookTicker normalizes a spot.book_ticker update. A vacated side arrives
// as an empty price string and withholds the quote.
func parseBookTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt envelope
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("book_ticker frame undecodable", err)
	}
	if skip, err := control(evt); skip || err != nil {
		return schema.TopOfBook{}, false, err
	}
	var book bookTickerResult
	if err := json.Unmarshal(evt.Result, &book); err != nil {
		return schema.TopOfBook{}, false, invalid("book_ticker result undecodable", err)
	}
	if book.Bid == "" || book.Ask == "" {
		return schema.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(book.Bid)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad bid price "+book.Bid, err)
	}
	ask, err := decimal.NewFromString(book.Ask)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad ask price "+book.Ask, err)
	}
	tob := schema.TopOfBook{Bid: bid, Ask: ask, Timestamp: book.TimeMs}
	if size, serr := decimal.NewFromString(book.BidSize); serr == nil {
		tob.BidVolume = size
	}
	if size, serr := decimal.NewFromString(book.AskSize); serr == nil {
		tob.AskVolume = size
	}
	return tob, true, nil
}

func invalid(msg string, cause error) error {
	return errs.New(string(venueName), errs.CodeInvalidMessage, errs.WithMessage(msg), errs.WithCause(cause))
}
