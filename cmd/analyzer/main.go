package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_backtest/internal/infrastructure/storage"
	"github.com/vitos/crypto_backtest/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	summaryPath := flag.String("summary", "", "Path to a run summary JSON file")
	dbPath := flag.String("db", "backtest.db", "Path to the SQLite run store")
	runID := flag.String("run", "", "Analyze a single stored run")
	limit := flag.Int("limit", 20, "Number of stored runs to rank")
	flag.Parse()

	if *summaryPath != "" {
		run, err := storage.ReadSummaryJSON(*summaryPath)
		if err != nil {
			fmt.Printf("Error reading summary: %v\n", err)
			os.Exit(1)
		}
		printDetail(usecase.Analyze(run))
		return
	}

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := usecase.NewRunAnalyzerService(store, zap.NewNop())
	ctx := context.Background()

	if *runID != "" {
		stats, err := svc.AnalyzeRun(ctx, *runID)
		if err != nil {
			fmt.Printf("Failed to analyze run: %v\n", err)
			os.Exit(1)
		}
		printDetail(stats)
		return
	}

	all, err := svc.AnalyzeLatest(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list runs: %v\n", err)
		os.Exit(1)
	}
	usecase.RankByReturn(all)

	fmt.Printf("\nRuns ranked by return (total analyzed: %d):\n", len(all))
	fmt.Printf("%-36s | %-10s | %-8s | %-8s | %-12s | %-12s | %s\n",
		"Run", "Return %", "Closed", "Win %", "Net PnL", "Max DD", "Halted")
	fmt.Println("------------------------------------------------------------------------------------------------------------")
	for _, s := range all {
		halted := ""
		if s.Halted {
			halted = "YES"
		}
		fmt.Printf("%-36s | %-10s | %-8d | %-8s | %-12s | %-12s | %s\n",
			s.RunID, s.ReturnPct.StringFixed(2), s.ClosedPositions, s.WinRatePct.StringFixed(2),
			s.NetRealized.StringFixed(4), s.MaxDrawdown.StringFixed(4), halted)
	}
}

func printDetail(s *usecase.RunStats) {
	fmt.Printf("Run: %s\n", s.RunID)
	fmt.Printf("  Bars:              %d\n", s.Bars)
	fmt.Printf("  Fills:             %d\n", s.Fills)
	fmt.Printf("  Closed positions:  %d (wins %d, losses %d, win rate %s%%)\n",
		s.ClosedPositions, s.Wins, s.Losses, s.WinRatePct.StringFixed(2))
	fmt.Printf("  Gross profit:      %s\n", s.GrossProfit.String())
	fmt.Printf("  Gross loss:        %s\n", s.GrossLoss.String())
	fmt.Printf("  Net realized:      %s\n", s.NetRealized.String())
	fmt.Printf("  Profit factor:     %s\n", s.ProfitFactor.String())
	fmt.Printf("  Best / worst:      %s / %s\n", s.BestPosition.String(), s.WorstPosition.String())
	fmt.Printf("  Commission:        %s\n", s.TotalCommission.String())
	fmt.Printf("  Return:            %s%%\n", s.ReturnPct.StringFixed(4))
	fmt.Printf("  Max drawdown:      %s (%s%%)\n", s.MaxDrawdown.String(), s.MaxDrawdownPct.StringFixed(4))
	if s.Halted {
		fmt.Println("  ⚠️ Run halted on an accounting violation")
	}
}
