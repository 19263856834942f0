package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/infrastructure/metrics"
	"github.com/vitos/crypto_backtest/internal/infrastructure/storage"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"github.com/vitos/crypto_backtest/internal/usecase"
	"github.com/vitos/crypto_backtest/internal/web"
	"go.uber.org/zap"
)

type stubQuotes map[string]domain.Quote

func (s stubQuotes) LatestQuote(id string) (domain.Quote, bool) {
	q, ok := s[id]
	return q, ok
}

type stubProgress struct{ run domain.RunSummary }

func (p stubProgress) Progress() domain.RunSummary { return p.run }

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fill(side domain.Side, qty int64, price string) domain.Fill {
	f := domain.Fill{ID: "f", InstrumentID: "BTC", Side: side, Quantity: qty, Price: d(price), Commission: decimal.Zero, Timestamp: t0}
	f.Cost = f.Notional()
	return f
}

func newTestServer(t *testing.T) (*web.Server, *storage.SQLiteStore, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(d("1000"), stubQuotes{"BTC": {Bid: d("19.5"), Ask: d("20.5")}})
	require.NoError(t, l.Transact(fill(domain.SideBuy, 3, "21")))
	require.NoError(t, l.Transact(fill(domain.SideSell, 5, "20")))

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	m.Bars.Add(7)
	progress := stubProgress{run: domain.RunSummary{ID: "live", Bars: 7}}
	return web.NewServer(0, l, progress, store, m.Handler(), zap.NewNop()), store, l
}

func get(t *testing.T, s *web.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp web.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Run)
	assert.Equal(t, 7, resp.Run.Bars)
	assert.True(t, resp.Ledger.Cash.Equal(d("1037")))
	assert.True(t, resp.Ledger.RealizedPnLTotal.Equal(d("-3")))
	assert.True(t, resp.Ledger.Equity.Equal(resp.Ledger.MarketEquity))
	assert.Equal(t, 1, resp.Ledger.ClosedCount)
}

func TestServer_Positions(t *testing.T) {
	s, _, _ := newTestServer(t)

	var open []ledger.Position
	rec := get(t, s, "/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&open))
	require.Len(t, open, 1)
	assert.Equal(t, domain.PositionShort, open[0].Side)
	assert.Equal(t, int64(2), open[0].Quantity)

	var closed []ledger.Position
	rec = get(t, s, "/positions/closed")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&closed))
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.Equal(d("-3")))
}

func TestServer_Runs(t *testing.T) {
	s, store, l := newTestServer(t)
	run := &domain.RunSummary{
		ID:              "r1",
		InstrumentID:    "BTC",
		Source:          "test",
		StartedAt:       t0,
		FinishedAt:      t0.Add(time.Minute),
		InitialCash:     d("1000"),
		FinalCash:       l.Cash(),
		FinalEquity:     l.Equity(),
		RealizedPnL:     l.RealizedPnLTotal(),
		UnrealizedPnL:   l.UnrealizedPnL(),
		Fills:           []domain.Fill{fill(domain.SideBuy, 3, "21")},
		Marks:           []domain.MarkPoint{{Time: t0, Bid: d("19.5"), Ask: d("20.5"), RealizedPnL: d("-3"), UnrealizedPnL: decimal.Zero, Equity: d("997")}},
		ClosedPositions: l.ClosedRecords(),
	}
	require.NoError(t, store.SaveRun(context.Background(), run))

	var runs []domain.RunSummary
	rec := get(t, s, "/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)

	var full domain.RunSummary
	rec = get(t, s, "/runs/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&full))
	assert.Len(t, full.ClosedPositions, 1)

	var fills []domain.Fill
	rec = get(t, s, "/runs/r1/fills")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fills))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Cost.Equal(d("63")))

	var marks []domain.MarkPoint
	rec = get(t, s, "/runs/r1/marks")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&marks))
	require.Len(t, marks, 1)
	assert.True(t, marks[0].Equity.Equal(d("997")))

	var stats usecase.RunStats
	rec = get(t, s, "/runs/r1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Losses)
	assert.True(t, stats.ReturnPct.Equal(d("-0.3")))
	assert.True(t, stats.MaxDrawdown.Equal(d("3")))
}

func TestServer_RunErrors(t *testing.T) {
	s, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/nope").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/nope/stats").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/runs?limit=abc").Code)

	rec := get(t, s, "/runs/nope/fills")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_NoRepository(t *testing.T) {
	l := ledger.New(d("1000"), stubQuotes{})
	s := web.NewServer(0, l, nil, nil, nil, zap.NewNop())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)

	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp web.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.Run)
	assert.True(t, resp.Ledger.Equity.Equal(d("1000")))
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backtest_bars_total 7")
}
