package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

// Position is the accounting state of one open exposure. Values handed out by the
// Ledger are snapshots; only the Ledger mutates the live instance.
type Position struct {
	ID              string              `json:"id"`
	InstrumentID    string              `json:"instrument_id"`
	Side            domain.PositionSide `json:"side"`
	Quantity        int64               `json:"quantity"`
	AvgEntryPrice   decimal.Decimal     `json:"avg_entry_price"`
	CostBasis       decimal.Decimal     `json:"cost_basis"`
	MarketValue     decimal.Decimal     `json:"market_value"`
	RealizedPnL     decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal     `json:"unrealized_pnl"`
	TotalCommission decimal.Decimal     `json:"total_commission"`
	BoughtQty       int64               `json:"bought_qty"`
	SoldQty         int64               `json:"sold_qty"`
	MarkBid         decimal.Decimal     `json:"mark_bid"`
	MarkAsk         decimal.Decimal     `json:"mark_ask"`
	Marked          bool                `json:"marked"`
	Stale           bool                `json:"stale"`
	OpenedAt        time.Time           `json:"opened_at"`
	LastFillAt      time.Time           `json:"last_fill_at"`
	ClosedAt        time.Time           `json:"closed_at,omitempty"`

	closed bool
}

func newPosition(id string, fill domain.Fill) *Position {
	p := &Position{
		ID:           id,
		InstrumentID: fill.InstrumentID,
		Side:         domain.PositionSideFor(fill.Side),
		OpenedAt:     fill.Timestamp,
	}
	p.applyFill(fill)
	return p
}

// IsOpen reports whether the position still carries quantity.
func (p *Position) IsOpen() bool {
	return p.Quantity > 0
}

// applyFill extends or reduces the position. A reducing fill larger than the open
// quantity means the ledger split was bypassed, and panics.
func (p *Position) applyFill(fill domain.Fill) {
	if fill.InstrumentID != p.InstrumentID {
		panic(fmt.Errorf("%w: fill for %s applied to %s position", domain.ErrInconsistentPositionSide, fill.InstrumentID, p.InstrumentID))
	}

	if p.closed {
		panic(fmt.Errorf("%w: fill applied to closed position %s", domain.ErrInconsistentPositionSide, p.ID))
	}

	if p.Side.Extends(fill.Side) {
		p.extend(fill)
	} else {
		if fill.Quantity > p.Quantity {
			panic(fmt.Errorf("%w: reducing %d from %s position of %d", domain.ErrInconsistentPositionSide, fill.Quantity, p.Side, p.Quantity))
		}
		p.reduce(fill)
	}

	if fill.Side == domain.SideBuy {
		p.BoughtQty += fill.Quantity
	} else {
		p.SoldQty += fill.Quantity
	}
	p.TotalCommission = p.TotalCommission.Add(fill.Commission)
	p.LastFillAt = fill.Timestamp
	p.CostBasis = p.AvgEntryPrice.Mul(decimal.NewFromInt(p.Quantity)).Mul(p.Side.Sign())
	p.revalue()
}

// extend folds the fill into a commission-inclusive volume-weighted average. The part
// of the average lost to rounding goes straight to realized PnL so that
// CostBasis == Quantity*AvgEntryPrice stays exact.
func (p *Position) extend(fill domain.Fill) {
	newQty := p.Quantity + fill.Quantity
	capital := p.AvgEntryPrice.Mul(decimal.NewFromInt(p.Quantity)).Add(fill.Notional())
	if p.Side == domain.PositionLong {
		capital = capital.Add(fill.Commission)
	} else {
		capital = capital.Sub(fill.Commission)
	}

	avg := divHalfEven(capital, newQty, AvgPriceScale)
	residual := capital.Sub(avg.Mul(decimal.NewFromInt(newQty)))

	p.AvgEntryPrice = avg
	p.Quantity = newQty
	p.RealizedPnL = p.RealizedPnL.Sub(residual.Mul(p.Side.Sign()))
}

// reduce realizes (price-avg)*qty*sign minus the fill's commission. The average of the
// remaining volume does not change.
func (p *Position) reduce(fill domain.Fill) {
	qty := decimal.NewFromInt(fill.Quantity)
	pnl := fill.Price.Sub(p.AvgEntryPrice).Mul(qty).Mul(p.Side.Sign()).Sub(fill.Commission)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Quantity -= fill.Quantity
}

// markToMarket values the open quantity at the quote midpoint. Calling it again with
// the same quote yields the same state.
func (p *Position) markToMarket(q domain.Quote) {
	p.MarkBid = q.Bid
	p.MarkAsk = q.Ask
	p.Marked = true
	p.Stale = false
	p.revalue()
}

// markAt is used when a position opens without any quote: the fill price stands in
// as the mark and the position is flagged stale.
func (p *Position) markAt(price decimal.Decimal) {
	p.MarkBid = price
	p.MarkAsk = price
	p.Marked = true
	p.Stale = true
	p.revalue()
}

// archive freezes a flat position before it moves to the closed list.
func (p *Position) archive(at time.Time) {
	p.closed = true
	p.ClosedAt = at
	p.MarketValue = decimal.Zero
	p.UnrealizedPnL = decimal.Zero
}

func (p *Position) markStale() {
	p.Stale = true
}

func (p *Position) revalue() {
	if !p.Marked {
		return
	}
	mid := domain.Quote{Bid: p.MarkBid, Ask: p.MarkAsk}.Mid()
	qty := decimal.NewFromInt(p.Quantity)
	sign := p.Side.Sign()
	p.MarketValue = mid.Mul(qty).Mul(sign)
	p.UnrealizedPnL = mid.Sub(p.AvgEntryPrice).Mul(qty).Mul(sign)
}

// Record converts the position into its archived form.
func (p Position) Record() domain.PositionRecord {
	return domain.PositionRecord{
		ID:              p.ID,
		InstrumentID:    p.InstrumentID,
		Side:            p.Side,
		AvgEntryPrice:   p.AvgEntryPrice,
		BoughtQty:       p.BoughtQty,
		SoldQty:         p.SoldQty,
		RealizedPnL:     p.RealizedPnL,
		TotalCommission: p.TotalCommission,
		OpenedAt:        p.OpenedAt,
		ClosedAt:        p.ClosedAt,
	}
}
