package mexc

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

type bookTickerEvent struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	Time    int64  `json:"t"`
	Code    *int   `json:"code"`
	Msg     string `json:"msg"`
	Data    struct {
		Ask     string `json:"a"`
		AskSize string `json:"A"`
		Bid     string `json:"b"`
		BidSize string `json:"B"`
	} `json:"d"`
}

// parseBookTicker normalizes a bookTicker push. Control responses carry a code
// field: PONG and subscription acks are skipped, anything else is a refusal.
func parseBookTicker(data []byte) (schema.TopOfBook, bool, error) {
	var evt bookTickerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.TopOfBook{}, false, invalid("frame undecodable", err)
	}
	if evt.Code != nil {
		if *evt.Code == 0 {
			return schema.TopOfBook{}, false, nil
		}
		return schema.TopOfBook{}, false, errs.New(string(venueName), errs.CodeVenueRejected,
			errs.WithMessage("subscription refused"), errs.WithRawMessage(evt.Msg))
	}
	if !strings.Contains(evt.Channel, "bookTicker") || evt.Data.Bid == "" || evt.Data.Ask == "" {
		return schema.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(evt.Data.Bid)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad bid price "+evt.Data.Bid, err)
	}
	ask, err := decimal.NewFromString(evt.Data.Ask)
	if err != nil {
		return schema.TopOfBook{}, false, invalid("bad ask price "+evt.Data.Ask, err)
	}
	tob := schema.TopOfBook{Bid: bid, Ask: ask, Timestamp: evt.Time}
	if size, serr := decimal.NewFromString(evt.Data.BidSize); serr == nil {
		tob.BidVolume = size
	}
	if size, serr := decimal.NewFromString(evt.Data.AskSize); serr == nil {
		tob.AskVolume = size
	}
	return tob, true, nil
}

// parseTicker is the same feed with depth sizes dropped.
func parseTicker(data []byte) (schema.TopOfBook, bool, error) {
	tob, ok, err := parseBookTicker(data)
	if !ok || err != nil {
		return schema.TopOfBook{}, ok, err
	}
	tob.BidVolume = decimal.Zero
	tob.AskVolume = decimal.Zero
	return tob, true, nil
}

func invalid(msg string, cause error) error {
	return errs.New(string(venueName), errs.CodeInvalidMessage, errs.WithMessage(msg), errs.WithCause(cause))
}
