package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionRecord is the archived state of a closed position.
type PositionRecord struct {
	ID              string          `json:"id"`
	InstrumentID    string          `json:"instrument_id"`
	Side            PositionSide    `json:"side"`
	AvgEntryPrice   decimal.Decimal `json:"avg_entry_price"`
	BoughtQty       int64           `json:"bought_qty"`
	SoldQty         int64           `json:"sold_qty"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	OpenedAt        time.Time       `json:"opened_at"`
	ClosedAt        time.Time       `json:"closed_at"`
}

// MarkPoint is one step of the persisted quote and PnL time series.
type MarkPoint struct {
	Time          time.Time       `json:"time"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
}

// RunSummary is the serialized result of one simulation run.
type RunSummary struct {
	ID              string           `json:"id"`
	InstrumentID    string           `json:"instrument_id"`
	Source          string           `json:"source"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Bars            int              `json:"bars"`
	OrdersSubmitted int              `json:"orders_submitted"`
	OrdersFilled    int              `json:"orders_filled"`
	OrdersSkipped   int              `json:"orders_skipped"`
	InitialCash     decimal.Decimal  `json:"initial_cash"`
	FinalCash       decimal.Decimal  `json:"final_cash"`
	FinalEquity     decimal.Decimal  `json:"final_equity"`
	RealizedPnL     decimal.Decimal  `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal  `json:"unrealized_pnl"`
	Halted          bool             `json:"halted"`
	HaltReason      string           `json:"halt_reason,omitempty"`
	Fills           []Fill           `json:"fills,omitempty"`
	Marks           []MarkPoint      `json:"marks,omitempty"`
	ClosedPositions []PositionRecord `json:"closed_positions,omitempty"`
}
