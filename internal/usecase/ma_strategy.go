package usecase

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

type StrategyConfig struct {
	Size        int64
	Kind        domain.OrderKind
	LimitOffset decimal.Decimal
}

// MovingAverageStrategy buys when the ask trades below the moving average and sells
// when the bid trades above it.
type MovingAverageStrategy struct {
	cfg StrategyConfig
}

func NewMovingAverageStrategy(cfg StrategyConfig) *MovingAverageStrategy {
	if cfg.Kind == "" {
		cfg.Kind = domain.OrderKindMarket
	}
	return &MovingAverageStrategy{cfg: cfg}
}

func (s *MovingAverageStrategy) Decide(bar domain.Bar, signals domain.Signals) []domain.Order {
	ma, ok := signals.Get(MovingAverageSignal)
	if !ok {
		return nil
	}

	switch {
	case bar.Ask.LessThan(ma):
		return []domain.Order{s.order(bar, domain.SideBuy, bar.Ask.Add(s.cfg.LimitOffset))}
	case bar.Bid.GreaterThan(ma):
		return []domain.Order{s.order(bar, domain.SideSell, bar.Bid.Sub(s.cfg.LimitOffset))}
	}
	return nil
}

func (s *MovingAverageStrategy) order(bar domain.Bar, side domain.Side, limit decimal.Decimal) domain.Order {
	o := domain.Order{
		ID:           uuid.NewString(),
		InstrumentID: bar.InstrumentID,
		Kind:         s.cfg.Kind,
		Side:         side,
		Quantity:     s.cfg.Size,
		SubmittedAt:  bar.Time,
	}
	if s.cfg.Kind == domain.OrderKindLimit {
		o.LimitPrice = decimal.NewNullDecimal(limit)
	}
	return o
}
