package usecase

import (
	"sync"

	"github.com/vitos/crypto_backtest/internal/domain"
)

// QuoteBook is the replay quote source: it remembers the last bar seen per instrument.
type QuoteBook struct {
	quotes map[string]domain.Quote
	mu     sync.RWMutex
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		quotes: make(map[string]domain.Quote),
	}
}

// Update records the bar's top of book. Bars that fail quote validation are ignored
// so the previous quote stays current.
func (b *QuoteBook) Update(bar domain.Bar) error {
	q := bar.Quote()
	if err := q.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[bar.InstrumentID] = q
	return nil
}

// Forget drops the quote for an instrument, e.g. after a feed gap.
func (b *QuoteBook) Forget(instrumentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.quotes, instrumentID)
}

func (b *QuoteBook) LatestQuote(instrumentID string) (domain.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[instrumentID]
	return q, ok
}
