package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
	"go.uber.org/zap"
)

const (
	orderbookTopic = "orderbook.1."
	pingInterval   = 20 * time.Second
)

// BybitFeed turns the public top-of-book stream into bars. It is the live
// counterpart of the CSV replay and satisfies the same BarFeed contract.
type BybitFeed struct {
	wsURL        string
	symbol       string
	instrumentID string
	logger       *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	bars    chan domain.Bar
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
	bid decimal.Decimal
	ask decimal.Decimal
}

func NewBybitFeed(wsURL, symbol, instrumentID string, logger *zap.Logger) *BybitFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BybitFeed{
		wsURL:        wsURL,
		symbol:       symbol,
		instrumentID: instrumentID,
		logger:       logger,
		bars:         make(chan domain.Bar, 64),
		done:         make(chan struct{}),
	}
}

// Connect dials the stream and subscribes to the symbol's level-1 book.
func (f *BybitFeed) Connect(ctx context.Context) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	f.conn = c

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{orderbookTopic + f.symbol},
	}
	if err := f.writeJSON(subMsg); err != nil {
		c.Close()
		return err
	}

	go f.readLoop()
	go f.pingLoop()
	f.logger.Info("Subscribed to orderbook", zap.String("symbol", f.symbol))
	return nil
}

func (f *BybitFeed) writeJSON(v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(v)
}

func (f *BybitFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			if err := f.writeJSON(map[string]string{"op": "ping"}); err != nil {
				f.logger.Warn("WS ping failed", zap.Error(err))
				return
			}
		}
	}
}

type orderbookEvent struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	TS    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`
}

func (f *BybitFeed) readLoop() {
	defer close(f.bars)

	for {
		_, message, err := f.conn.ReadMessage()
		if err != nil {
			f.finish(err)
			return
		}

		var event orderbookEvent
		if err := json.Unmarshal(message, &event); err != nil {
			f.logger.Warn("WS unmarshal error", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(event.Topic, orderbookTopic) {
			continue
		}

		bar, ok := f.apply(event)
		if !ok {
			continue
		}
		select {
		case f.bars <- bar:
		case <-f.done:
			return
		}
	}
}

// apply folds a snapshot or delta into the current top of book. A level with size
// zero is a removal and leaves the previous price until a new one arrives.
func (f *BybitFeed) apply(event orderbookEvent) (domain.Bar, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := topLevel(event.Data.Bids); ok {
		f.bid = p
	}
	if p, ok := topLevel(event.Data.Asks); ok {
		f.ask = p
	}
	if !f.bid.IsPositive() || !f.ask.IsPositive() {
		return domain.Bar{}, false
	}
	return domain.Bar{
		InstrumentID: f.instrumentID,
		Time:         time.UnixMilli(event.TS).UTC(),
		Bid:          f.bid,
		Ask:          f.ask,
	}, true
}

func topLevel(levels [][]string) (decimal.Decimal, bool) {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return decimal.Decimal{}, false
	}
	if size, err := strconv.ParseFloat(levels[0][1], 64); err != nil || size == 0 {
		return decimal.Decimal{}, false
	}
	p, err := decimal.NewFromString(levels[0][0])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return p, true
}

func (f *BybitFeed) finish(err error) {
	select {
	case <-f.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.logger.Error("WS read error", zap.Error(err))
}

// Next blocks until a bar arrives. It returns io.EOF once the stream closed normally
// or Close was called.
func (f *BybitFeed) Next(ctx context.Context) (domain.Bar, error) {
	select {
	case <-ctx.Done():
		return domain.Bar{}, ctx.Err()
	case bar, ok := <-f.bars:
		if ok {
			return bar, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Bar{}, f.err
	}
	return domain.Bar{}, io.EOF
}

func (f *BybitFeed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		if f.conn == nil {
			return
		}
		f.writeMu.Lock()
		_ = f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.writeMu.Unlock()
		if cerr := f.conn.Close(); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
			err = cerr
		}
	})
	return err
}
