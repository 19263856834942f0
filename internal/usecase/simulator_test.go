package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/infrastructure/metrics"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"github.com/vitos/crypto_backtest/internal/usecase"
)

type sliceFeed struct {
	bars []domain.Bar
	err  error
}

func (f *sliceFeed) Next(ctx context.Context) (domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bar{}, err
	}
	if len(f.bars) == 0 {
		if f.err != nil {
			return domain.Bar{}, f.err
		}
		return domain.Bar{}, io.EOF
	}
	b := f.bars[0]
	f.bars = f.bars[1:]
	return b, nil
}

func (f *sliceFeed) Close() error { return nil }

// scripted returns the orders listed for each bar time.
type scripted map[time.Time][]domain.Order

func (s scripted) Decide(bar domain.Bar, _ domain.Signals) []domain.Order {
	return s[bar.Time]
}

type panicStrategy struct{ at time.Time }

func (p panicStrategy) Decide(bar domain.Bar, _ domain.Signals) []domain.Order {
	if bar.Time.Equal(p.at) {
		panic(fmt.Errorf("%w: split bypassed", domain.ErrInconsistentPositionSide))
	}
	return nil
}

type MockRepo struct {
	saved []*domain.RunSummary
}

func (m *MockRepo) SaveRun(ctx context.Context, run *domain.RunSummary) error {
	m.saved = append(m.saved, run)
	return nil
}

func (m *MockRepo) ListRuns(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	return m.saved, nil
}

func (m *MockRepo) GetRun(ctx context.Context, id string) (*domain.RunSummary, error) {
	for _, r := range m.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func (m *MockRepo) ListClosedPositions(ctx context.Context, runID string) ([]domain.PositionRecord, error) {
	return nil, nil
}

func (m *MockRepo) ListFills(ctx context.Context, runID string) ([]domain.Fill, error) {
	return nil, nil
}

func (m *MockRepo) ListMarks(ctx context.Context, runID string) ([]domain.MarkPoint, error) {
	return nil, nil
}

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func orderAt(o domain.Order, minutes int) domain.Order {
	o.SubmittedAt = at(minutes)
	return o
}

func newSimulator(feed domain.BarFeed, strategy domain.Strategy, cfg usecase.SimulatorConfig) (*usecase.Simulator, *MockRepo, *metrics.Metrics) {
	book := usecase.NewQuoteBook()
	if cfg.InitialCash.IsZero() {
		cfg.InitialCash = d("1000")
	}
	cfg.InstrumentID = "BTC"
	repo := &MockRepo{}
	m := metrics.New()
	sim := usecase.NewSimulator(cfg, usecase.SimulatorDeps{
		Feed:     feed,
		Quotes:   book,
		Engine:   usecase.NewMatchingEngine(book, d("0")),
		Ledger:   ledger.New(cfg.InitialCash, book),
		Signals:  usecase.NewSignalCollector(usecase.NewMovingAverage(time.Hour)),
		Strategy: strategy,
		Repo:     repo,
		Metrics:  m,
	})
	return sim, repo, m
}

func scenarioBars() []domain.Bar {
	return []domain.Bar{
		bar(at(0), "99", "101"),
		bar(at(1), "100", "102"),
		bar(at(2), "0", "101"),
		bar(at(3), "95", "97"),
	}
}

func scenarioStrategy() scripted {
	return scripted{
		at(0): {orderAt(marketOrder(domain.SideBuy, 3), 0)},
		at(1): {orderAt(marketOrder(domain.SideSell, 5), 1)},
		at(2): {orderAt(marketOrder(domain.SideBuy, 1), 2)},
		at(3): {orderAt(limitOrder(domain.SideBuy, 2, "96"), 3)},
	}
}

func TestSimulator_RunScenario(t *testing.T) {
	sim, repo, _ := newSimulator(&sliceFeed{bars: scenarioBars()}, scenarioStrategy(), usecase.SimulatorConfig{Source: "test"})

	summary, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Bars)
	assert.Equal(t, 4, summary.OrdersSubmitted)
	assert.Equal(t, 2, summary.OrdersFilled)
	assert.Equal(t, 1, summary.OrdersSkipped, "no quote on the broken bar")
	assert.False(t, summary.Halted)

	require.Len(t, summary.Fills, 2)
	assert.True(t, summary.Fills[0].Price.Equal(d("101")))
	assert.True(t, summary.Fills[1].Price.Equal(d("100")))

	require.Len(t, summary.ClosedPositions, 1)
	assert.Equal(t, domain.PositionLong, summary.ClosedPositions[0].Side)
	assert.True(t, summary.RealizedPnL.Equal(d("-3")))
	assert.True(t, summary.FinalCash.Equal(d("1197")))
	assert.True(t, summary.UnrealizedPnL.Equal(d("8")))
	assert.True(t, summary.FinalEquity.Equal(d("1005")))

	require.Len(t, summary.Marks, 4)
	assert.True(t, summary.Marks[1].UnrealizedPnL.Equal(d("-2")))
	assert.True(t, summary.Marks[1].RealizedPnL.Equal(d("-3")))
	assert.True(t, summary.Marks[2].UnrealizedPnL.Equal(d("-2")), "stale mark keeps the last value")

	pos, ok := sim.Ledger().Position("BTC")
	require.True(t, ok)
	assert.Equal(t, domain.PositionShort, pos.Side)
	assert.Equal(t, int64(2), pos.Quantity)
	require.NoError(t, sim.Ledger().Reconcile())

	require.Len(t, repo.saved, 1)
	assert.Equal(t, summary.ID, repo.saved[0].ID)
}

func TestSimulator_StepAppliesBarBeforeNext(t *testing.T) {
	sim, _, _ := newSimulator(&sliceFeed{}, scenarioStrategy(), usecase.SimulatorConfig{})

	require.NoError(t, sim.Step(scenarioBars()[0]))
	pos, ok := sim.Ledger().Position("BTC")
	require.True(t, ok)
	assert.True(t, pos.UnrealizedPnL.Equal(d("-3")), "marked at the same bar's mid")

	require.NoError(t, sim.Step(scenarioBars()[1]))
	pos, _ = sim.Ledger().Position("BTC")
	assert.Equal(t, domain.PositionShort, pos.Side)
	assert.Equal(t, 2, sim.Progress().OrdersFilled)
}

func TestSimulator_Window(t *testing.T) {
	sim, _, _ := newSimulator(&sliceFeed{bars: scenarioBars()}, scripted{}, usecase.SimulatorConfig{Start: at(1), End: at(3)})

	summary, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Bars)
	require.Len(t, summary.Marks, 2)
	assert.Equal(t, at(1), summary.Marks[0].Time)
	assert.True(t, sim.InWindow(at(1)))
	assert.False(t, sim.InWindow(at(3)))
}

func TestSimulator_HaltsOnContractViolation(t *testing.T) {
	sim, repo, m := newSimulator(&sliceFeed{bars: scenarioBars()}, panicStrategy{at: at(1)}, usecase.SimulatorConfig{})

	summary, err := sim.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInconsistentPositionSide))
	assert.True(t, summary.Halted)
	assert.Contains(t, summary.HaltReason, "split bypassed")
	assert.Equal(t, 2, summary.Bars)
	require.Len(t, repo.saved, 1)
	assert.True(t, repo.saved[0].Halted)
	assert.Contains(t, scrape(t, m), "backtest_runs_halted_total 1")
}

func TestSimulator_OtherPanicsPropagate(t *testing.T) {
	sim, _, _ := newSimulator(&sliceFeed{}, panicAlways{}, usecase.SimulatorConfig{})
	assert.Panics(t, func() { _ = sim.Step(bar(t0, "99", "101")) })
}

type panicAlways struct{}

func (panicAlways) Decide(domain.Bar, domain.Signals) []domain.Order { panic("bug") }

func TestSimulator_FeedErrors(t *testing.T) {
	sim, _, _ := newSimulator(&sliceFeed{bars: scenarioBars()[:1], err: errors.New("disconnected")}, scripted{}, usecase.SimulatorConfig{})

	summary, err := sim.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disconnected")
	assert.Equal(t, 1, summary.Bars)
	assert.False(t, summary.Halted)
}

func TestSimulator_CancelledContextEndsRun(t *testing.T) {
	sim, _, _ := newSimulator(&sliceFeed{bars: scenarioBars()}, scripted{}, usecase.SimulatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := sim.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Bars)
}

func TestSimulator_MovingAverageStrategyEndToEnd(t *testing.T) {
	bars := []domain.Bar{
		bar(at(0), "100", "100.5"),
		bar(at(1), "97", "97.5"),
		bar(at(2), "103", "103.5"),
		bar(at(3), "99", "99.5"),
	}
	strategy := usecase.NewMovingAverageStrategy(usecase.StrategyConfig{Size: 1})
	sim, _, m := newSimulator(&sliceFeed{bars: bars}, strategy, usecase.SimulatorConfig{})

	summary, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, summary.OrdersFilled)
	assert.Equal(t, summary.OrdersSubmitted, summary.OrdersFilled)
	require.NoError(t, sim.Ledger().Reconcile())
	assert.Contains(t, scrape(t, m), "backtest_bars_total 4")
}
