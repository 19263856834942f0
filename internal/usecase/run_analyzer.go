package usecase

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// RunStats are performance figures derived from a finished run.
type RunStats struct {
	RunID           string          `json:"run_id"`
	Bars            int             `json:"bars"`
	Fills           int             `json:"fills"`
	ClosedPositions int             `json:"closed_positions"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	WinRatePct      decimal.Decimal `json:"win_rate_pct"`
	GrossProfit     decimal.Decimal `json:"gross_profit"`
	GrossLoss       decimal.Decimal `json:"gross_loss"`
	NetRealized     decimal.Decimal `json:"net_realized"`
	ProfitFactor    decimal.Decimal `json:"profit_factor"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	ReturnPct       decimal.Decimal `json:"return_pct"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPct  decimal.Decimal `json:"max_drawdown_pct"`
	BestPosition    decimal.Decimal `json:"best_position"`
	WorstPosition   decimal.Decimal `json:"worst_position"`
	Halted          bool            `json:"halted"`
}

type RunAnalyzerService struct {
	repo   domain.RunRepository
	logger *zap.Logger
}

func NewRunAnalyzerService(repo domain.RunRepository, logger *zap.Logger) *RunAnalyzerService {
	return &RunAnalyzerService{
		repo:   repo,
		logger: logger,
	}
}

// AnalyzeRun loads a stored run and computes its statistics.
func (s *RunAnalyzerService) AnalyzeRun(ctx context.Context, runID string) (*RunStats, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stats := Analyze(run)
	s.logger.Debug("Analyzed run", zap.String("run_id", runID), zap.Int("closed_positions", stats.ClosedPositions))
	return stats, nil
}

// AnalyzeLatest returns statistics for the most recent runs, newest first.
func (s *RunAnalyzerService) AnalyzeLatest(ctx context.Context, limit int) ([]*RunStats, error) {
	runs, err := s.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*RunStats, 0, len(runs))
	for _, r := range runs {
		stats, err := s.AnalyzeRun(ctx, r.ID)
		if err != nil {
			s.logger.Warn("Skipping run", zap.String("run_id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, stats)
	}
	return out, nil
}

// Analyze is the pure computation behind AnalyzeRun.
func Analyze(run *domain.RunSummary) *RunStats {
	stats := &RunStats{
		RunID:           run.ID,
		Bars:            run.Bars,
		Fills:           len(run.Fills),
		ClosedPositions: len(run.ClosedPositions),
		Halted:          run.Halted,
	}

	for i, p := range run.ClosedPositions {
		switch {
		case p.RealizedPnL.IsPositive():
			stats.Wins++
			stats.GrossProfit = stats.GrossProfit.Add(p.RealizedPnL)
		case p.RealizedPnL.IsNegative():
			stats.Losses++
			stats.GrossLoss = stats.GrossLoss.Add(p.RealizedPnL)
		}
		if i == 0 || p.RealizedPnL.GreaterThan(stats.BestPosition) {
			stats.BestPosition = p.RealizedPnL
		}
		if i == 0 || p.RealizedPnL.LessThan(stats.WorstPosition) {
			stats.WorstPosition = p.RealizedPnL
		}
	}
	stats.NetRealized = stats.GrossProfit.Add(stats.GrossLoss)

	if stats.ClosedPositions > 0 {
		stats.WinRatePct = decimal.NewFromInt(int64(stats.Wins)).Mul(hundred).
			DivRound(decimal.NewFromInt(int64(stats.ClosedPositions)), 2)
	}
	if !stats.GrossLoss.IsZero() {
		stats.ProfitFactor = stats.GrossProfit.DivRound(stats.GrossLoss.Abs(), 4)
	}

	for _, f := range run.Fills {
		stats.TotalCommission = stats.TotalCommission.Add(f.Commission)
	}

	if run.InitialCash.IsPositive() {
		stats.ReturnPct = run.FinalEquity.Sub(run.InitialCash).Mul(hundred).DivRound(run.InitialCash, 4)
	}

	stats.MaxDrawdown, stats.MaxDrawdownPct = maxDrawdown(run.InitialCash, run.Marks)
	return stats
}

// maxDrawdown is the largest fall of equity from a running peak that starts at the
// initial cash.
func maxDrawdown(initial decimal.Decimal, marks []domain.MarkPoint) (decimal.Decimal, decimal.Decimal) {
	peak := initial
	worst, worstPct := decimal.Zero, decimal.Zero
	for _, m := range marks {
		if m.Equity.GreaterThan(peak) {
			peak = m.Equity
			continue
		}
		dd := peak.Sub(m.Equity)
		if dd.GreaterThan(worst) {
			worst = dd
			if peak.IsPositive() {
				worstPct = dd.Mul(hundred).DivRound(peak, 4)
			}
		}
	}
	return worst, worstPct
}

// RankByReturn orders stats best return first.
func RankByReturn(stats []*RunStats) {
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].ReturnPct.GreaterThan(stats[j].ReturnPct)
	})
}
