package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// PositionSide is the direction of an open exposure.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionSideFor maps the side of an opening fill to the exposure it creates.
func PositionSideFor(s Side) PositionSide {
	if s == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// Sign is +1 for long and -1 for short exposure.
func (p PositionSide) Sign() decimal.Decimal {
	if p == PositionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Extends reports whether a fill on side s adds to this exposure.
func (p PositionSide) Extends(s Side) bool {
	return PositionSideFor(s) == p
}

// ClosingSide is the order side that reduces this exposure.
func (p PositionSide) ClosingSide() Side {
	if p == PositionShort {
		return SideBuy
	}
	return SideSell
}

// Order is a request produced by a strategy. LimitPrice is set only for limit orders.
type Order struct {
	ID           string
	InstrumentID string
	Kind         OrderKind
	Side         Side
	Quantity     int64
	LimitPrice   decimal.NullDecimal
	SubmittedAt  time.Time
}

// Validate checks the order contract before matching.
func (o Order) Validate() error {
	if o.InstrumentID == "" {
		return fmt.Errorf("%w: missing instrument", ErrInvalidOrder)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, o.Quantity)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	}
	switch o.Kind {
	case OrderKindMarket:
		if o.LimitPrice.Valid {
			return fmt.Errorf("%w: market order carries a limit price", ErrInvalidOrder)
		}
	case OrderKindLimit:
		if !o.LimitPrice.Valid || !o.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("%w: limit order needs a positive limit price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOrder, o.Kind)
	}
	return nil
}

func (o Order) String() string {
	if o.Kind == OrderKindLimit {
		return fmt.Sprintf("%s %s %d @ %s limit", o.InstrumentID, o.Side, o.Quantity, o.LimitPrice.Decimal)
	}
	return fmt.Sprintf("%s %s %d @ market", o.InstrumentID, o.Side, o.Quantity)
}

// Fill is an executed order. Only the matching engine creates fills; consumers get copies.
type Fill struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Commission   decimal.Decimal `json:"commission"`
	Cost         decimal.Decimal `json:"cost"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Validate checks the fill contract before it touches ledger state.
func (f Fill) Validate() error {
	if f.InstrumentID == "" {
		return ErrUnknownInstrument
	}
	if f.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidFill, f.Quantity)
	}
	if !f.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidFill, f.Side)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidFill, f.Price)
	}
	if f.Commission.IsNegative() {
		return fmt.Errorf("%w: negative commission %s", ErrInvalidFill, f.Commission)
	}
	return nil
}

// Notional is quantity*price.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Quantity))
}
