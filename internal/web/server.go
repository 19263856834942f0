package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"go.uber.org/zap"
)

// LedgerReader is the read side of the account ledger.
type LedgerReader interface {
	Snapshot() ledger.Snapshot
	ClosedPositions() []ledger.Position
}

// RunProgress reports the counters of the run in progress.
type RunProgress interface {
	Progress() domain.RunSummary
}

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	ledger   LedgerReader
	progress RunProgress
	runRepo  domain.RunRepository
	metrics  http.Handler
	logger   *zap.Logger
}

// NewServer exposes a read-only view of the simulation. runRepo and metrics may be nil.
func NewServer(
	port int,
	ledger LedgerReader,
	progress RunProgress,
	runRepo domain.RunRepository,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		ledger:   ledger,
		progress: progress,
		runRepo:  runRepo,
		metrics:  metrics,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Positions
	s.router.HandleFunc("GET /positions", s.handlePositions)
	s.router.HandleFunc("GET /positions/closed", s.handleClosedPositions)

	// Stored runs
	s.router.HandleFunc("GET /runs", s.handleListRuns)
	s.router.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.router.HandleFunc("GET /runs/{id}/fills", s.handleRunFills)
	s.router.HandleFunc("GET /runs/{id}/marks", s.handleRunMarks)
	s.router.HandleFunc("GET /runs/{id}/stats", s.handleRunStats)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

// Handler is the route table, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
