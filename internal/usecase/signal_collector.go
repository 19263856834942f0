package usecase

import (
	"github.com/vitos/crypto_backtest/internal/domain"
)

// SignalCollector fans each bar out to its generators and gathers their values.
type SignalCollector struct {
	generators []domain.SignalGenerator
}

func NewSignalCollector(generators ...domain.SignalGenerator) *SignalCollector {
	return &SignalCollector{generators: generators}
}

func (c *SignalCollector) Update(bar domain.Bar) {
	for _, g := range c.generators {
		g.Update(bar)
	}
}

// Values omits generators that have no value yet.
func (c *SignalCollector) Values() domain.Signals {
	out := make(domain.Signals, len(c.generators))
	for _, g := range c.generators {
		if v, ok := g.Value(); ok {
			out[g.Name()] = v
		}
	}
	return out
}
