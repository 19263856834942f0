package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/usecase"
)

func TestMovingAverageStrategy_Decide(t *testing.T) {
	signals := domain.Signals{usecase.MovingAverageSignal: d("100")}

	tests := []struct {
		name     string
		bar      domain.Bar
		signals  domain.Signals
		wantSide domain.Side
	}{
		{"ask below average buys", bar(t0, "98", "99"), signals, domain.SideBuy},
		{"bid above average sells", bar(t0, "101", "102"), signals, domain.SideSell},
		{"average inside spread holds", bar(t0, "99", "101"), signals, ""},
		{"no signal holds", bar(t0, "50", "51"), domain.Signals{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := usecase.NewMovingAverageStrategy(usecase.StrategyConfig{Size: 10})
			orders := s.Decide(tt.bar, tt.signals)
			if tt.wantSide == "" {
				assert.Empty(t, orders)
				return
			}
			require.Len(t, orders, 1)
			o := orders[0]
			assert.Equal(t, tt.wantSide, o.Side)
			assert.Equal(t, domain.OrderKindMarket, o.Kind)
			assert.Equal(t, int64(10), o.Quantity)
			assert.Equal(t, "BTC", o.InstrumentID)
			assert.Equal(t, t0, o.SubmittedAt)
			assert.False(t, o.LimitPrice.Valid)
			assert.NoError(t, o.Validate())
		})
	}
}

func TestMovingAverageStrategy_LimitOffset(t *testing.T) {
	s := usecase.NewMovingAverageStrategy(usecase.StrategyConfig{
		Size:        2,
		Kind:        domain.OrderKindLimit,
		LimitOffset: d("0.5"),
	})
	signals := domain.Signals{usecase.MovingAverageSignal: d("100")}

	buy := s.Decide(bar(t0, "98", "99"), signals)
	require.Len(t, buy, 1)
	assert.True(t, buy[0].LimitPrice.Decimal.Equal(d("99.5")))

	sell := s.Decide(bar(t0, "101", "102"), signals)
	require.Len(t, sell, 1)
	assert.True(t, sell[0].LimitPrice.Decimal.Equal(d("100.5")))
	assert.NoError(t, sell[0].Validate())
}
