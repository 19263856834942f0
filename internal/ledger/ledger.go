package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

// Ledger owns cash, the open position per instrument and the archive of closed
// positions. It is the only writer of Position state; every method holds one lock,
// so mutation of a position is serialized.
type Ledger struct {
	quotes domain.QuoteSource
	newID  func() string

	initialCash   decimal.Decimal
	cash          decimal.Decimal
	realizedTotal decimal.Decimal
	positions     map[string]*Position
	closed        []Position

	mu sync.Mutex
}

// Snapshot is a consistent read of the ledger at one observation point.
type Snapshot struct {
	InitialCash      decimal.Decimal `json:"initial_cash"`
	Cash             decimal.Decimal `json:"cash"`
	RealizedPnLTotal decimal.Decimal `json:"realized_pnl_total"`
	OpenRealizedPnL  decimal.Decimal `json:"open_realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	Equity           decimal.Decimal `json:"equity"`
	MarketEquity     decimal.Decimal `json:"market_equity"`
	OpenPositions    []Position      `json:"open_positions"`
	ClosedCount      int             `json:"closed_count"`
}

func New(initialCash decimal.Decimal, quotes domain.QuoteSource) *Ledger {
	return &Ledger{
		quotes:        quotes,
		newID:         uuid.NewString,
		initialCash:   initialCash,
		cash:          initialCash,
		realizedTotal: decimal.Zero,
		positions:     make(map[string]*Position),
	}
}

// Apply forwards a matching result; a nil fill is a no-op.
func (l *Ledger) Apply(fill *domain.Fill) error {
	if fill == nil {
		return nil
	}
	return l.Transact(*fill)
}

// Transact books one fill: cash first, then the position update, then a fresh mark.
// An opposite-side fill larger than the open quantity closes the position and opens
// a new one on the other side with the remainder.
func (l *Ledger) Transact(fill domain.Fill) error {
	if err := fill.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.adjustCash(fill)

	pos, ok := l.positions[fill.InstrumentID]
	switch {
	case !ok:
		l.open(fill)
	case pos.Side.Extends(fill.Side):
		pos.applyFill(fill)
	case fill.Quantity <= pos.Quantity:
		pos.applyFill(fill)
		if !pos.IsOpen() {
			l.archive(pos, fill)
		}
	default:
		closing, remainder := splitFill(fill, pos.Quantity)
		pos.applyFill(closing)
		l.archive(pos, closing)
		l.open(remainder)
	}

	if pos, ok := l.positions[fill.InstrumentID]; ok {
		l.mark(pos, fill.Price)
	}
	return nil
}

func (l *Ledger) adjustCash(fill domain.Fill) {
	if fill.Side == domain.SideBuy {
		l.cash = l.cash.Sub(fill.Notional().Add(fill.Commission))
	} else {
		l.cash = l.cash.Add(fill.Notional().Sub(fill.Commission))
	}
}

func (l *Ledger) open(fill domain.Fill) {
	l.positions[fill.InstrumentID] = newPosition(l.newID(), fill)
}

func (l *Ledger) archive(pos *Position, last domain.Fill) {
	pos.archive(last.Timestamp)
	l.realizedTotal = l.realizedTotal.Add(pos.RealizedPnL)
	l.closed = append(l.closed, *pos)
	delete(l.positions, pos.InstrumentID)
}

// splitFill cuts a reversing fill into the part that closes qty and the remainder.
// Commission is prorated by quantity; the remainder takes the exact difference.
func splitFill(fill domain.Fill, qty int64) (domain.Fill, domain.Fill) {
	closing := fill
	closing.Quantity = qty
	closing.Commission = divHalfEven(fill.Commission.Mul(decimal.NewFromInt(qty)), fill.Quantity, AvgPriceScale)
	closing.Cost = closing.Notional()

	remainder := fill
	remainder.Quantity = fill.Quantity - qty
	remainder.Commission = fill.Commission.Sub(closing.Commission)
	remainder.Cost = remainder.Notional()
	return closing, remainder
}

// mark refreshes pos from the quote source. Without a usable quote the position keeps
// its last mark and is flagged stale; a never-marked position falls back to fallback.
func (l *Ledger) mark(pos *Position, fallback decimal.Decimal) bool {
	if l.quotes != nil {
		if q, ok := l.quotes.LatestQuote(pos.InstrumentID); ok && q.Validate() == nil {
			pos.markToMarket(q)
			return true
		}
	}
	if !pos.Marked {
		pos.markAt(fallback)
		return false
	}
	pos.markStale()
	return false
}

// MarkToMarketAll refreshes every open position and returns the instruments whose
// marks are stale.
func (l *Ledger) MarkToMarketAll() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []string
	for _, id := range l.instruments() {
		pos := l.positions[id]
		if !l.mark(pos, pos.AvgEntryPrice) {
			stale = append(stale, id)
		}
	}
	return stale
}

func (l *Ledger) instruments() []string {
	ids := make([]string, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Position returns a snapshot of the open position for an instrument.
func (l *Ledger) Position(instrumentID string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[instrumentID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (l *Ledger) OpenPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openPositions()
}

func (l *Ledger) openPositions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, id := range l.instruments() {
		out = append(out, *l.positions[id])
	}
	return out
}

// ClosedPositions returns archived positions in closing order.
func (l *Ledger) ClosedPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}

func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// RealizedPnLTotal is the realized PnL of closed positions only.
func (l *Ledger) RealizedPnLTotal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedTotal
}

func (l *Ledger) UnrealizedPnL() decimal.Decimal {
	return l.Snapshot().UnrealizedPnL
}

// Equity is initial cash plus all realized and unrealized PnL.
func (l *Ledger) Equity() decimal.Decimal {
	return l.Snapshot().Equity
}

// Snapshot computes both sides of the equity identity under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		InitialCash:      l.initialCash,
		Cash:             l.cash,
		RealizedPnLTotal: l.realizedTotal,
		OpenRealizedPnL:  decimal.Zero,
		UnrealizedPnL:    decimal.Zero,
		MarketEquity:     l.cash,
		OpenPositions:    l.openPositions(),
		ClosedCount:      len(l.closed),
	}
	for _, pos := range s.OpenPositions {
		s.OpenRealizedPnL = s.OpenRealizedPnL.Add(pos.RealizedPnL)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(pos.UnrealizedPnL)
		s.MarketEquity = s.MarketEquity.Add(pos.MarketValue)
	}
	s.Equity = l.initialCash.Add(l.realizedTotal).Add(s.OpenRealizedPnL).Add(s.UnrealizedPnL)
	return s
}

// Reconcile checks that PnL-based equity matches cash plus market value.
func (l *Ledger) Reconcile() error {
	s := l.Snapshot()
	if !s.Equity.Equal(s.MarketEquity) {
		return fmt.Errorf("equity %s does not reconcile with cash plus market value %s", s.Equity, s.MarketEquity)
	}
	return nil
}

// ClosedRecords returns the archive in its persisted form.
func (l *Ledger) ClosedRecords() []domain.PositionRecord {
	closed := l.ClosedPositions()
	out := make([]domain.PositionRecord, 0, len(closed))
	for _, pos := range closed {
		out = append(out, pos.Record())
	}
	return out
}

// MarketEquity is cash plus the signed market value of open positions.
func (l *Ledger) MarketEquity() decimal.Decimal {
	return l.Snapshot().MarketEquity
}
