package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource returns the latest quote for an instrument. It must be a pure read.
type QuoteSource interface {
	LatestQuote(instrumentID string) (Quote, bool)
}

// BarFeed yields bars in time order. Next returns io.EOF when the feed is exhausted.
type BarFeed interface {
	Next(ctx context.Context) (Bar, error)
	Close() error
}

// SignalGenerator derives one named indicator from the bar stream.
type SignalGenerator interface {
	Name() string
	Update(bar Bar)
	Value() (decimal.Decimal, bool)
}

// Strategy decides which orders to submit for a bar.
type Strategy interface {
	Decide(bar Bar, signals Signals) []Order
}

// RunRepository persists finished simulation runs.
type RunRepository interface {
	SaveRun(ctx context.Context, run *RunSummary) error
	GetRun(ctx context.Context, id string) (*RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)
	ListFills(ctx context.Context, runID string) ([]Fill, error)
	ListMarks(ctx context.Context, runID string) ([]MarkPoint, error)
	ListClosedPositions(ctx context.Context, runID string) ([]PositionRecord, error)
}
