package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/infrastructure/metrics"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"go.uber.org/zap"
)

type SimulatorConfig struct {
	InstrumentID string
	Source       string
	InitialCash  decimal.Decimal
	// Start and End bound the replay to [Start, End). Zero values leave that side open.
	Start time.Time
	End   time.Time
}

// Simulator drives one run: each bar is fully matched, booked and marked before the
// next one is read.
type Simulator struct {
	cfg      SimulatorConfig
	feed     domain.BarFeed
	quotes   *QuoteBook
	engine   *MatchingEngine
	ledger   *ledger.Ledger
	signals  *SignalCollector
	strategy domain.Strategy
	repo     domain.RunRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger

	summary *domain.RunSummary
	mu      sync.Mutex
	timeNow func() time.Time // For testing
}

type SimulatorDeps struct {
	Feed     domain.BarFeed
	Quotes   *QuoteBook
	Engine   *MatchingEngine
	Ledger   *ledger.Ledger
	Signals  *SignalCollector
	Strategy domain.Strategy
	Repo     domain.RunRepository // optional
	Metrics  *metrics.Metrics     // optional
	Logger   *zap.Logger
}

func NewSimulator(cfg SimulatorConfig, deps SimulatorDeps) *Simulator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Signals == nil {
		deps.Signals = NewSignalCollector()
	}
	return &Simulator{
		cfg:      cfg,
		feed:     deps.Feed,
		quotes:   deps.Quotes,
		engine:   deps.Engine,
		ledger:   deps.Ledger,
		signals:  deps.Signals,
		strategy: deps.Strategy,
		repo:     deps.Repo,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		summary:  newSummary(cfg),
		timeNow:  time.Now,
	}
}

func newSummary(cfg SimulatorConfig) *domain.RunSummary {
	return &domain.RunSummary{
		ID:           uuid.NewString(),
		InstrumentID: cfg.InstrumentID,
		Source:       cfg.Source,
		InitialCash:  cfg.InitialCash,
	}
}

func (s *Simulator) Ledger() *ledger.Ledger {
	return s.ledger
}

// InWindow reports whether a bar time falls inside the configured replay window.
func (s *Simulator) InWindow(t time.Time) bool {
	if !s.cfg.Start.IsZero() && t.Before(s.cfg.Start) {
		return false
	}
	if !s.cfg.End.IsZero() && !t.Before(s.cfg.End) {
		return false
	}
	return true
}

// Step processes one bar. The only error it returns is a ledger contract violation,
// which must stop the run.
func (s *Simulator) Step(bar domain.Bar) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok || !errors.Is(perr, domain.ErrInconsistentPositionSide) {
				panic(r)
			}
			err = perr
		}
	}()

	if !s.InWindow(bar.Time) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.Bars++
	if s.metrics != nil {
		s.metrics.Bars.Inc()
	}

	if err := s.quotes.Update(bar); err != nil {
		// Never match against the previous bar's prices.
		s.quotes.Forget(bar.InstrumentID)
		s.logger.Warn("Bar has no usable quote", zap.Time("time", bar.Time), zap.Error(err))
	} else {
		s.signals.Update(bar)
	}

	for _, order := range s.strategy.Decide(bar, s.signals.Values()) {
		s.submit(order)
	}

	if stale := s.ledger.MarkToMarketAll(); len(stale) > 0 {
		s.logger.Warn("Positions keep last mark",
			zap.Strings("instruments", stale), zap.Error(domain.ErrStaleMark))
		if s.metrics != nil {
			s.metrics.StaleMarks.Add(float64(len(stale)))
		}
	}

	s.record(bar)
	return nil
}

func (s *Simulator) submit(order domain.Order) {
	s.summary.OrdersSubmitted++

	fill, err := s.engine.Submit(order)
	if err != nil {
		s.summary.OrdersSkipped++
		s.count("skipped")
		s.logger.Warn("Order skipped", zap.String("order", order.String()), zap.Error(err))
		return
	}
	if fill == nil {
		s.count("unfilled")
		s.logger.Debug("Limit order not marketable", zap.String("order", order.String()))
		return
	}

	if err := s.ledger.Apply(fill); err != nil {
		s.summary.OrdersSkipped++
		s.count("rejected")
		s.logger.Warn("Fill rejected", zap.String("fill_id", fill.ID), zap.Error(err))
		return
	}

	s.summary.OrdersFilled++
	s.summary.Fills = append(s.summary.Fills, *fill)
	s.count("filled")
	if s.metrics != nil {
		s.metrics.Fills.WithLabelValues(string(fill.Side)).Inc()
	}
	s.logger.Info("Order filled",
		zap.String("order", order.String()),
		zap.String("price", fill.Price.String()),
		zap.String("commission", fill.Commission.String()))
}

func (s *Simulator) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Orders.WithLabelValues(outcome).Inc()
	}
}

func (s *Simulator) record(bar domain.Bar) {
	snap := s.ledger.Snapshot()
	s.summary.Marks = append(s.summary.Marks, domain.MarkPoint{
		Time:          bar.Time,
		Bid:           bar.Bid,
		Ask:           bar.Ask,
		RealizedPnL:   snap.RealizedPnLTotal.Add(snap.OpenRealizedPnL),
		UnrealizedPnL: snap.UnrealizedPnL,
		Equity:        snap.Equity,
	})

	if s.metrics == nil {
		return
	}
	metrics.SetDecimal(s.metrics.Cash, snap.Cash)
	metrics.SetDecimal(s.metrics.Equity, snap.Equity)
	metrics.SetDecimal(s.metrics.Realized, snap.RealizedPnLTotal)
	metrics.SetDecimal(s.metrics.Unrealized, snap.UnrealizedPnL)
	s.metrics.OpenQty.Reset()
	for _, pos := range snap.OpenPositions {
		s.metrics.OpenQty.WithLabelValues(pos.InstrumentID).Set(float64(pos.Quantity) * float64(sign(pos.Side)))
	}
}

func sign(side domain.PositionSide) int {
	if side == domain.PositionShort {
		return -1
	}
	return 1
}

// Run replays the feed until it is exhausted or ctx is cancelled. A halted run still
// returns its summary together with the halting error.
func (s *Simulator) Run(ctx context.Context) (*domain.RunSummary, error) {
	s.mu.Lock()
	s.summary.StartedAt = s.timeNow()
	s.mu.Unlock()

	s.logger.Info("Run started",
		zap.String("run_id", s.summary.ID),
		zap.String("instrument", s.cfg.InstrumentID),
		zap.String("source", s.cfg.Source))

	var runErr error
	for {
		bar, err := s.feed.Next(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			break
		}
		if err != nil {
			runErr = fmt.Errorf("read bar: %w", err)
			s.logger.Error("Feed failed", zap.Error(err))
			break
		}

		if err := s.Step(bar); err != nil {
			runErr = err
			s.halt(err)
			break
		}
	}

	summary := s.finish()
	if s.repo != nil {
		if err := s.repo.SaveRun(context.WithoutCancel(ctx), summary); err != nil {
			s.logger.Error("Failed to save run", zap.String("run_id", summary.ID), zap.Error(err))
		}
	}

	s.logger.Info("Run finished",
		zap.String("run_id", summary.ID),
		zap.Int("bars", summary.Bars),
		zap.Int("fills", summary.OrdersFilled),
		zap.Int("skipped", summary.OrdersSkipped),
		zap.String("equity", summary.FinalEquity.String()),
		zap.String("realized_pnl", summary.RealizedPnL.String()),
		zap.Bool("halted", summary.Halted))
	return summary, runErr
}

func (s *Simulator) halt(err error) {
	s.mu.Lock()
	s.summary.Halted = true
	s.summary.HaltReason = err.Error()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunsHalted.Inc()
	}
	s.logger.Error("Run halted", zap.Error(err))
}

func (s *Simulator) finish() *domain.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.ledger.Snapshot()
	s.summary.FinishedAt = s.timeNow()
	s.summary.FinalCash = snap.Cash
	s.summary.FinalEquity = snap.Equity
	s.summary.RealizedPnL = snap.RealizedPnLTotal
	s.summary.UnrealizedPnL = snap.UnrealizedPnL
	s.summary.ClosedPositions = s.ledger.ClosedRecords()

	out := *s.summary
	return &out
}

// Progress returns a copy of the running counters without the series.
func (s *Simulator) Progress() domain.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.summary
	out.Fills = nil
	out.Marks = nil
	out.ClosedPositions = nil
	return out
}
