package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var half = decimal.New(5, -1)

// Quote is the top of book for one instrument at one instant.
type Quote struct {
	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
	Time time.Time       `json:"time"`
}

// NewLastPriceQuote builds a degenerate quote that uses one price for both sides.
func NewLastPriceQuote(price decimal.Decimal, at time.Time) Quote {
	return Quote{Bid: price, Ask: price, Time: at}
}

// Validate rejects non-positive and crossed quotes.
func (q Quote) Validate() error {
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return fmt.Errorf("%w: bid %s ask %s", ErrInvalidQuote, q.Bid, q.Ask)
	}
	if q.Bid.GreaterThan(q.Ask) {
		return fmt.Errorf("%w: crossed bid %s > ask %s", ErrInvalidQuote, q.Bid, q.Ask)
	}
	return nil
}

// Mid is (bid+ask)/2, exact.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Mul(half)
}

// Bar is one replayed market step.
type Bar struct {
	InstrumentID string          `json:"instrument_id"`
	Time         time.Time       `json:"time"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
}

func (b Bar) Quote() Quote {
	return Quote{Bid: b.Bid, Ask: b.Ask, Time: b.Time}
}

// Signals maps indicator names to their latest values. A missing key means no value yet.
type Signals map[string]decimal.Decimal

func (s Signals) Get(name string) (decimal.Decimal, bool) {
	v, ok := s[name]
	return v, ok
}
