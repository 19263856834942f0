package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_backtest/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "backtest.db", "Path to the SQLite run store")
	limit := flag.Int("limit", 10, "Number of runs to list")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list runs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d runs:\n", len(runs))
	for _, r := range runs {
		fmt.Printf("- Run ID: %s, Instrument: %s, Source: %s, Bars: %d, Equity: %s\n",
			r.ID, r.InstrumentID, r.Source, r.Bars, r.FinalEquity.String())
		if r.Halted {
			fmt.Printf("  ⚠️ Halted: %s\n", r.HaltReason)
		}

		closed, err := store.ListClosedPositions(ctx, r.ID)
		if err != nil {
			fmt.Printf("  ❌ Failed to get closed positions: %v\n", err)
			continue
		}
		if len(closed) == 0 {
			fmt.Printf("  ⚠️ No closed positions\n")
			continue
		}
		for _, p := range closed {
			fmt.Printf("  ✅ %s %s bought=%d sold=%d avg=%s realized=%s commission=%s\n",
				p.ID, p.Side, p.BoughtQty, p.SoldQty, p.AvgEntryPrice.String(),
				p.RealizedPnL.String(), p.TotalCommission.String())
		}
	}
}
