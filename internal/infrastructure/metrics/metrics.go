// Package metrics holds the Prometheus collectors updated by the simulation driver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "backtest"

// Metrics uses its own registry so that several simulators (and tests) can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	Bars       prometheus.Counter
	Orders     *prometheus.CounterVec
	Fills      *prometheus.CounterVec
	StaleMarks prometheus.Counter
	Cash       prometheus.Gauge
	Equity     prometheus.Gauge
	Realized   prometheus.Gauge
	Unrealized prometheus.Gauge
	OpenQty    *prometheus.GaugeVec
	RunsHalted prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Bars: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bars_total", Help: "Bars processed by the driver.",
		}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Orders submitted, by outcome.",
		}, []string{"outcome"}),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fills_total", Help: "Fills booked, by side.",
		}, []string{"side"}),
		StaleMarks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_marks_total", Help: "Positions left on a stale mark.",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cash", Help: "Ledger cash balance.",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity", Help: "Ledger equity.",
		}),
		Realized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "realized_pnl", Help: "Realized PnL of closed positions.",
		}),
		Unrealized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "unrealized_pnl", Help: "Unrealized PnL of open positions.",
		}),
		OpenQty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_quantity", Help: "Signed open quantity per instrument.",
		}, []string{"instrument"}),
		RunsHalted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_halted_total", Help: "Runs stopped by a ledger contract violation.",
		}),
	}
	m.registry.MustRegister(m.Bars, m.Orders, m.Fills, m.StaleMarks, m.Cash, m.Equity,
		m.Realized, m.Unrealized, m.OpenQty, m.RunsHalted)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetDecimal stores a decimal on a gauge. Gauges are float64, so this is display only.
func SetDecimal(g prometheus.Gauge, v decimal.Decimal) {
	f, _ := v.Float64()
	g.Set(f)
}
