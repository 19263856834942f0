package usecase

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

const MovingAverageSignal = "Moving Average"

// signalScale is the number of decimal places kept for indicator values.
const signalScale int32 = 8

type PricePoint struct {
	Price decimal.Decimal
	Time  time.Time
}

// MovingAverage is the mean bar midpoint over a trailing time window ending at the
// latest bar.
type MovingAverage struct {
	lookback time.Duration
	points   []PricePoint
	sum      decimal.Decimal
}

func NewMovingAverage(lookback time.Duration) *MovingAverage {
	return &MovingAverage{lookback: lookback}
}

func (m *MovingAverage) Name() string {
	return MovingAverageSignal
}

func (m *MovingAverage) Update(bar domain.Bar) {
	mid := bar.Quote().Mid()
	m.points = append(m.points, PricePoint{Price: mid, Time: bar.Time})
	m.sum = m.sum.Add(mid)

	// Prune points older than the window
	cutoff := bar.Time.Add(-m.lookback)
	valid := m.points[:0]
	for _, p := range m.points {
		if p.Time.Before(cutoff) {
			m.sum = m.sum.Sub(p.Price)
			continue
		}
		valid = append(valid, p)
	}
	m.points = valid
}

func (m *MovingAverage) Value() (decimal.Decimal, bool) {
	if len(m.points) == 0 {
		return decimal.Zero, false
	}
	return m.sum.DivRound(decimal.NewFromInt(int64(len(m.points))), signalScale), true
}

// Len is the number of points inside the window.
func (m *MovingAverage) Len() int {
	return len(m.points)
}
