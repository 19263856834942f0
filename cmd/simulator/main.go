package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/infrastructure/exchange"
	"github.com/vitos/crypto_backtest/internal/infrastructure/feed"
	"github.com/vitos/crypto_backtest/internal/infrastructure/logger"
	"github.com/vitos/crypto_backtest/internal/infrastructure/metrics"
	"github.com/vitos/crypto_backtest/internal/infrastructure/storage"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"github.com/vitos/crypto_backtest/internal/usecase"
	"github.com/vitos/crypto_backtest/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	source := flag.String("source", "", "override data.source (csv, bybit, bybit_kline)")
	csvPath := flag.String("csv", "", "override data.csv_path")
	verbose := flag.Bool("verbose", false, "human readable console logs")
	flag.Parse()

	// 1. Load Config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *csvPath != "" {
		cfg.Data.CSVPath = *csvPath
	}
	settings, err := cfg.Resolve()
	if err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	switch {
	case *verbose:
		log, err = logger.NewConsoleLogger(cfg.Logging.Level)
	case cfg.Logging.File != "":
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	default:
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, settings, log); err != nil {
		log.Error("Simulator stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *Config, settings Settings, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage
	var repo domain.RunRepository
	if cfg.Storage.DBPath != "" {
		store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
		defer store.Close()
		repo = store
	}

	// 4. Init Feed
	barFeed, err := openFeed(ctx, cfg, settings, log)
	if err != nil {
		return err
	}
	defer barFeed.Close()

	// 5. Init Core
	book := usecase.NewQuoteBook()
	engine := usecase.NewMatchingEngine(book, settings.CommissionRate)
	accounts := ledger.New(settings.InitialCash, book)
	signals := usecase.NewSignalCollector(usecase.NewMovingAverage(cfg.Strategy.Lookback))
	strategy := usecase.NewMovingAverageStrategy(usecase.StrategyConfig{
		Size:        cfg.Strategy.OrderSize,
		Kind:        settings.OrderKind,
		LimitOffset: settings.LimitOffset,
	})
	m := metrics.New()

	sim := usecase.NewSimulator(usecase.SimulatorConfig{
		InstrumentID: cfg.Instrument.ID,
		Source:       sourceName(cfg),
		InitialCash:  settings.InitialCash,
		Start:        settings.Start,
		End:          settings.End,
	}, usecase.SimulatorDeps{
		Feed:     barFeed,
		Quotes:   book,
		Engine:   engine,
		Ledger:   accounts,
		Signals:  signals,
		Strategy: strategy,
		Repo:     repo,
		Metrics:  m,
		Logger:   log,
	})

	// 6. Init Web Server
	var server *web.Server
	if cfg.Server.Port > 0 {
		server = web.NewServer(cfg.Server.Port, accounts, sim, repo, m.Handler(), log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("Web server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Web server shutdown failed", zap.Error(err))
			}
		}()
	}

	// 7. Run
	summary, runErr := sim.Run(ctx)
	if cfg.Storage.SummaryPath != "" {
		if err := storage.WriteSummaryJSON(cfg.Storage.SummaryPath, summary); err != nil {
			log.Error("Failed to write summary", zap.String("path", cfg.Storage.SummaryPath), zap.Error(err))
		}
	}
	if err := accounts.Reconcile(); err != nil {
		log.Error("Ledger does not reconcile", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	if server != nil && cfg.Server.KeepAlive {
		log.Info("Run complete, serving results until interrupted")
		<-ctx.Done()
	}
	return nil
}

func openFeed(ctx context.Context, cfg *Config, settings Settings, log *zap.Logger) (domain.BarFeed, error) {
	switch cfg.Data.Source {
	case SourceCSV:
		return feed.OpenCSV(cfg.Data.CSVPath, feed.CSVConfig{
			InstrumentID: cfg.Instrument.ID,
			Spread:       settings.Spread,
		}, log)
	case SourceBybitKline:
		client := exchange.NewBybitClient(cfg.Exchanges.Bybit.RESTEndpoint)
		bars, err := client.KlineBars(ctx, cfg.Instrument.Symbol, cfg.Instrument.ID, cfg.Data.KlineInterval, cfg.Data.KlineLimit, settings.Spread)
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		log.Info("Fetched klines", zap.String("symbol", cfg.Instrument.Symbol), zap.Int("bars", len(bars)))
		return feed.NewReplayFeed(bars), nil
	case SourceBybit:
		live := exchange.NewBybitFeed(cfg.Exchanges.Bybit.WSEndpoint, cfg.Instrument.Symbol, cfg.Instrument.ID, log)
		if err := live.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect bybit: %w", err)
		}
		return live, nil
	}
	return nil, errors.New("unknown data source " + cfg.Data.Source)
}

func sourceName(cfg *Config) string {
	if cfg.Data.Source == SourceCSV {
		return SourceCSV + ":" + cfg.Data.CSVPath
	}
	return cfg.Data.Source + ":" + cfg.Instrument.Symbol
}
