package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

// BybitClient reads public market data over the v5 REST API.
type BybitClient struct {
	baseURL string
	client  *http.Client
}

func NewBybitClient(baseURL string) *BybitClient {
	return &BybitClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// --- REST API ---

func (b *BybitClient) sendRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(respBody))
	}

	return respBody, nil
}

// KlineBars fetches candles and turns each close into a bar quoted close∓spread,
// oldest first.
func (b *BybitClient) KlineBars(ctx context.Context, symbol, instrumentID, interval string, limit int, spread decimal.Decimal) ([]domain.Bar, error) {
	// V5 Kline Endpoint
	path := fmt.Sprintf("/v5/market/kline?category=linear&symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	resp, err := b.sendRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit kline error: %d %s", result.RetCode, result.RetMsg)
	}

	bars := make([]domain.Bar, 0, len(result.Result.List))
	for _, raw := range result.Result.List {
		// Format: [startTime, open, high, low, close, volume, turnover]
		if len(raw) < 5 {
			continue
		}
		ts, err := strconv.ParseInt(raw[0], 10, 64)
		if err != nil {
			continue
		}
		closePrice, err := decimal.NewFromString(raw[4])
		if err != nil {
			continue
		}
		bars = append(bars, domain.Bar{
			InstrumentID: instrumentID,
			Time:         time.UnixMilli(ts).UTC(),
			Bid:          closePrice.Sub(spread),
			Ask:          closePrice.Add(spread),
		})
	}

	// Bybit returns candles newest first
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}
