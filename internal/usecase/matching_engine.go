package usecase

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

// MatchingEngine resolves one order at a time against the current top of book.
// Orders never rest: they fill immediately or are dropped.
type MatchingEngine struct {
	quotes         domain.QuoteSource
	commissionRate decimal.Decimal
	lastQuote      domain.Quote
	hasQuote       bool
	newID          func() string
}

func NewMatchingEngine(quotes domain.QuoteSource, commissionRate decimal.Decimal) *MatchingEngine {
	return &MatchingEngine{
		quotes:         quotes,
		commissionRate: commissionRate,
		newID:          uuid.NewString,
	}
}

// Submit returns the fill for a marketable order, nil for a limit order that does not
// cross, or an error when the order is invalid or no usable quote exists.
func (e *MatchingEngine) Submit(order domain.Order) (*domain.Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	q, ok := e.quotes.LatestQuote(order.InstrumentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoQuoteAvailable, order.InstrumentID)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoQuoteAvailable, err)
	}
	e.lastQuote = q
	e.hasQuote = true

	price, ok := fillPrice(order, q)
	if !ok {
		return nil, nil
	}

	qty := decimal.NewFromInt(order.Quantity)
	fill := &domain.Fill{
		ID:           e.newID(),
		OrderID:      order.ID,
		InstrumentID: order.InstrumentID,
		Side:         order.Side,
		Quantity:     order.Quantity,
		Price:        price,
		Commission:   qty.Mul(e.commissionRate),
		Cost:         price.Mul(qty),
		Timestamp:    order.SubmittedAt,
	}
	return fill, nil
}

// fillPrice takes the ask for buys and the bid for sells. A limit order fills only
// when its price crosses that side.
func fillPrice(order domain.Order, q domain.Quote) (decimal.Decimal, bool) {
	price := q.Bid
	if order.Side == domain.SideBuy {
		price = q.Ask
	}
	if order.Kind == domain.OrderKindMarket {
		return price, true
	}

	limit := order.LimitPrice.Decimal
	if order.Side == domain.SideBuy {
		return price, limit.GreaterThanOrEqual(price)
	}
	return price, limit.LessThanOrEqual(price)
}

// LastQuote is the quote the most recent order was evaluated against.
func (e *MatchingEngine) LastQuote() (domain.Quote, bool) {
	return e.lastQuote, e.hasQuote
}
