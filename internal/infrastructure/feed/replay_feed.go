package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
	"go.uber.org/zap"
)

const (
	colTimestamp     = "Timestamp"
	colWeightedPrice = "Weighted Price"
	colBid           = "Bid"
	colAsk           = "Ask"
)

type CSVConfig struct {
	InstrumentID string
	// Spread is subtracted from and added to Weighted Price to build bid and ask.
	// Ignored when the file carries Bid and Ask columns.
	Spread decimal.Decimal
}

// ReplayFeed replays historical bars, oldest first.
type ReplayFeed struct {
	bars    []domain.Bar
	pos     int
	skipped int
}

// NewReplayFeed replays bars already in memory, e.g. fetched klines.
func NewReplayFeed(bars []domain.Bar) *ReplayFeed {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sortBars(sorted)
	return &ReplayFeed{bars: sorted}
}

func sortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
}

func OpenCSV(path string, cfg CSVConfig, logger *zap.Logger) (*ReplayFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, cfg, logger)
}

// ReadCSV parses the whole input. Rows with an unparseable time or price are skipped
// and counted.
func ReadCSV(r io.Reader, cfg CSVConfig, logger *zap.Logger) (*ReplayFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	parse, err := rowParser(cols, cfg)
	if err != nil {
		return nil, err
	}

	feed := &ReplayFeed{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		bar, err := parse(record)
		if err != nil {
			feed.skipped++
			logger.Debug("Skipping csv row", zap.Int("line", line), zap.Error(err))
			continue
		}
		feed.bars = append(feed.bars, bar)
	}

	sortBars(feed.bars)

	logger.Info("Loaded csv bars",
		zap.String("instrument", cfg.InstrumentID),
		zap.Int("bars", len(feed.bars)),
		zap.Int("skipped", feed.skipped))
	return feed, nil
}

func rowParser(cols map[string]int, cfg CSVConfig) (func([]string) (domain.Bar, error), error) {
	ts, ok := cols[colTimestamp]
	if !ok {
		return nil, fmt.Errorf("csv header has no %q column", colTimestamp)
	}

	bid, hasBid := cols[colBid]
	ask, hasAsk := cols[colAsk]
	if hasBid && hasAsk {
		return func(rec []string) (domain.Bar, error) {
			t, err := field(rec, ts, parseTime)
			if err != nil {
				return domain.Bar{}, err
			}
			b, err := field(rec, bid, decimal.NewFromString)
			if err != nil {
				return domain.Bar{}, err
			}
			a, err := field(rec, ask, decimal.NewFromString)
			if err != nil {
				return domain.Bar{}, err
			}
			return domain.Bar{InstrumentID: cfg.InstrumentID, Time: t, Bid: b, Ask: a}, nil
		}, nil
	}

	wp, ok := cols[colWeightedPrice]
	if !ok {
		return nil, fmt.Errorf("csv header needs %q or %q and %q columns", colWeightedPrice, colBid, colAsk)
	}
	return func(rec []string) (domain.Bar, error) {
		t, err := field(rec, ts, parseTime)
		if err != nil {
			return domain.Bar{}, err
		}
		p, err := field(rec, wp, decimal.NewFromString)
		if err != nil {
			return domain.Bar{}, err
		}
		return domain.Bar{InstrumentID: cfg.InstrumentID, Time: t, Bid: p.Sub(cfg.Spread), Ask: p.Add(cfg.Spread)}, nil
	}, nil
}

func field[T any](rec []string, idx int, parse func(string) (T, error)) (T, error) {
	var zero T
	if idx >= len(rec) {
		return zero, fmt.Errorf("missing column %d", idx)
	}
	v, err := parse(strings.TrimSpace(rec[idx]))
	if err != nil {
		return zero, err
	}
	return v, nil
}

// parseTime accepts unix seconds, RFC3339 and plain date or datetime strings.
func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (f *ReplayFeed) Next(ctx context.Context) (domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bar{}, err
	}
	if f.pos >= len(f.bars) {
		return domain.Bar{}, io.EOF
	}
	bar := f.bars[f.pos]
	f.pos++
	return bar, nil
}

func (f *ReplayFeed) Close() error {
	return nil
}

// Len is the number of bars loaded.
func (f *ReplayFeed) Len() int {
	return len(f.bars)
}

// Skipped is the number of rows dropped while loading.
func (f *ReplayFeed) Skipped() int {
	return f.skipped
}
