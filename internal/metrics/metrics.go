// Package metrics exposes the engine's Prometheus collectors. All methods are
// safe on a nil *Registry so callers never need to check whether metrics are on.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartbot/internal/pkg/circuit"
)

// Registry holds all smartbot metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Orders        *prometheus.CounterVec
	Skips         *prometheus.CounterVec
	Exits         *prometheus.CounterVec
	Blocked       prometheus.Counter

	OpenPositions prometheus.Gauge
	DynamicRisk   prometheus.Gauge
	FreeCash      prometheus.Gauge
	BrainTrades   prometheus.Gauge
	BreakerState  *prometheus.GaugeVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartbot_cycles_total",
				Help: "Trading cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartbot_cycle_duration_seconds",
				Help:    "Wall time of one trading cycle",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartbot_orders_total",
				Help: "Orders by side and outcome",
			},
			[]string{"side", "outcome"},
		),
		Skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartbot_entry_skips_total",
				Help: "Entries skipped by guardrail reason",
			},
			[]string{"reason"},
		),
		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartbot_exit_intents_total",
				Help: "Exit intents by rule",
			},
			[]string{"rule"},
		),
		Blocked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smartbot_brain_blocked_total",
				Help: "Tickers hard-blocked by the brain filter",
			},
		),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbot_open_positions",
			Help: "Positions currently tracked by the risk manager",
		}),
		DynamicRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbot_dynamic_risk_fraction",
			Help: "Per-trade risk fraction; 0 means the circuit breaker is tripped",
		}),
		FreeCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbot_free_cash",
			Help: "Free cash reported by the broker",
		}),
		BrainTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbot_brain_trades",
			Help: "Closed trades the brain has learned from",
		}),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smartbot_breaker_state",
				Help: "0=closed, 1=open, 2=half_open",
			},
			[]string{"name"},
		),
	}
	r.reg.MustRegister(
		r.Cycles, r.CycleDuration, r.Orders, r.Skips, r.Exits, r.Blocked,
		r.OpenPositions, r.DynamicRisk, r.FreeCash, r.BrainTrades, r.BreakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer is the underlying registry, for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

func (r *Registry) ObserveCycle(d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.Cycles.WithLabelValues(outcome).Inc()
	r.CycleDuration.Observe(d.Seconds())
}

func (r *Registry) Order(side, outcome string) {
	if r == nil {
		return
	}
	r.Orders.WithLabelValues(side, outcome).Inc()
}

func (r *Registry) Skip(reason string) {
	if r == nil {
		return
	}
	r.Skips.WithLabelValues(reason).Inc()
}

func (r *Registry) Exit(rule string) {
	if r == nil {
		return
	}
	r.Exits.WithLabelValues(rule).Inc()
}

func (r *Registry) BlockedTickers(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Blocked.Add(float64(n))
}

// Account records the per-cycle gauges.
func (r *Registry) Account(positions int, dynamicRisk, freeCash float64, brainTrades int) {
	if r == nil {
		return
	}
	r.OpenPositions.Set(float64(positions))
	r.DynamicRisk.Set(dynamicRisk)
	r.FreeCash.Set(freeCash)
	r.BrainTrades.Set(float64(brainTrades))
}

// TrackBreaker mirrors breaker transitions into smartbot_breaker_state.
func (r *Registry) TrackBreaker(cb *circuit.CircuitBreaker) {
	if r == nil || cb == nil {
		return
	}
	cb.SetStateChangeHandler(func(name string, _, to circuit.State) {
		r.BreakerState.WithLabelValues(name).Set(float64(to))
	})
	r.BreakerState.WithLabelValues(cb.Name()).Set(float64(cb.State()))
}
