package usecase_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/usecase"
	"go.uber.org/zap"
)

func closedWith(pnls ...string) []domain.PositionRecord {
	out := make([]domain.PositionRecord, len(pnls))
	for i, p := range pnls {
		out[i] = domain.PositionRecord{InstrumentID: "BTC", RealizedPnL: d(p)}
	}
	return out
}

func marksWith(equities ...string) []domain.MarkPoint {
	out := make([]domain.MarkPoint, len(equities))
	for i, e := range equities {
		out[i] = domain.MarkPoint{Time: at(i), Equity: d(e)}
	}
	return out
}

func TestAnalyze(t *testing.T) {
	run := &domain.RunSummary{
		ID:              "r1",
		Bars:            5,
		InitialCash:     d("1000"),
		FinalEquity:     d("1005"),
		Fills:           []domain.Fill{{Commission: d("0.5")}, {Commission: d("0.25")}},
		Marks:           marksWith("1000", "1010", "995", "1020", "1005"),
		ClosedPositions: closedWith("10", "-4", "6", "0"),
	}

	stats := usecase.Analyze(run)

	assert.Equal(t, "r1", stats.RunID)
	assert.Equal(t, 2, stats.Fills)
	assert.Equal(t, 4, stats.ClosedPositions)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.True(t, stats.WinRatePct.Equal(d("50")), stats.WinRatePct.String())
	assert.True(t, stats.GrossProfit.Equal(d("16")))
	assert.True(t, stats.GrossLoss.Equal(d("-4")))
	assert.True(t, stats.NetRealized.Equal(d("12")))
	assert.True(t, stats.ProfitFactor.Equal(d("4")))
	assert.True(t, stats.BestPosition.Equal(d("10")))
	assert.True(t, stats.WorstPosition.Equal(d("-4")))
	assert.True(t, stats.TotalCommission.Equal(d("0.75")))
	assert.True(t, stats.ReturnPct.Equal(d("0.5")), stats.ReturnPct.String())
	assert.True(t, stats.MaxDrawdown.Equal(d("15")))
	assert.True(t, stats.MaxDrawdownPct.Equal(d("1.4851")), stats.MaxDrawdownPct.String())
}

func TestAnalyze_EmptyRun(t *testing.T) {
	stats := usecase.Analyze(&domain.RunSummary{ID: "empty", InitialCash: d("1000"), FinalEquity: d("1000")})

	assert.Equal(t, 0, stats.ClosedPositions)
	assert.True(t, stats.WinRatePct.IsZero())
	assert.True(t, stats.ProfitFactor.IsZero())
	assert.True(t, stats.ReturnPct.IsZero())
	assert.True(t, stats.MaxDrawdown.IsZero())
}

func TestAnalyze_OnlyLosses(t *testing.T) {
	stats := usecase.Analyze(&domain.RunSummary{
		InitialCash:     d("100"),
		FinalEquity:     d("90"),
		Marks:           marksWith("95", "90"),
		ClosedPositions: closedWith("-3", "-7"),
	})

	assert.True(t, stats.ProfitFactor.IsZero())
	assert.True(t, stats.BestPosition.Equal(d("-3")))
	assert.True(t, stats.ReturnPct.Equal(d("-10")))
	assert.True(t, stats.MaxDrawdown.Equal(d("10")))
	assert.True(t, stats.MaxDrawdownPct.Equal(d("10")))
}

func TestRunAnalyzerService(t *testing.T) {
	repo := &MockRepo{saved: []*domain.RunSummary{
		{ID: "a", InitialCash: d("100"), FinalEquity: d("90")},
		{ID: "b", InitialCash: d("100"), FinalEquity: d("120")},
	}}
	svc := usecase.NewRunAnalyzerService(repo, zap.NewNop())
	ctx := context.Background()

	stats, err := svc.AnalyzeRun(ctx, "b")
	require.NoError(t, err)
	assert.True(t, stats.ReturnPct.Equal(decimal.NewFromInt(20)))

	_, err = svc.AnalyzeRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	all, err := svc.AnalyzeLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	usecase.RankByReturn(all)
	assert.Equal(t, "b", all[0].RunID)
	assert.Equal(t, "a", all[1].RunID)
}
