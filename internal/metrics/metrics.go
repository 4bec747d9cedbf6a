// Package metrics exposes engine and executor activity as Prometheus
// collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const namespace = "tradepilot"

// StatusFunc returns the engine status at scrape time.
type StatusFunc func() autopilot.Status

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	decisions *prometheus.CounterVec
	orders    *prometheus.CounterVec
}

// New registers the collectors. status may be nil, in which case no engine
// gauges are exported.
func New(status StatusFunc) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events published, by type.",
		}, []string{"type"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions that reached a status, by status and kind.",
		}, []string{"status", "kind"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "orders_total",
			Help:      "Order placement attempts, by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(m.events, m.decisions, m.orders)

	if status != nil {
		gauge := func(name, help string, fn func(autopilot.Status) float64) prometheus.Collector {
			return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: name, Help: help,
			}, func() float64 { return fn(status()) })
		}
		m.reg.MustRegister(
			gauge("pending_decisions", "Decisions awaiting approval.", func(s autopilot.Status) float64 {
				return float64(s.PendingCount)
			}),
			gauge("killed", "1 while the kill switch is engaged.", func(s autopilot.Status) float64 {
				return boolFloat(s.Killed)
			}),
			gauge("paused", "1 while the engine is paused.", func(s autopilot.Status) float64 {
				return boolFloat(s.Paused)
			}),
			gauge("daily_pnl_percent", "Daily P&L in percent.", func(s autopilot.Status) float64 {
				return s.Risk.DailyPnLPercent
			}),
			gauge("drawdown_percent", "Current drawdown in percent.", func(s autopilot.Status) float64 {
				return s.Risk.CurrentDrawdown
			}),
			gauge("total_exposure", "Total open exposure.", func(s autopilot.Status) float64 {
				return s.Risk.TotalExposure
			}),
		)
		for _, mode := range domain.Modes() {
			mode := mode
			m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "mode",
				Help:        "1 for the active autonomy mode.",
				ConstLabels: prometheus.Labels{"mode": string(mode)},
			}, func() float64 { return boolFloat(status().Mode == mode) }))
		}
	}
	return m
}

// Name identifies the collector in engine logs.
func (m *Metrics) Name() string { return "metrics" }

// Publish counts ev.
func (m *Metrics) Publish(_ context.Context, ev domain.Event) error {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	if d := ev.Decision; d != nil {
		status := string(d.Status)
		if ev.Type == domain.EventDecisionCompleted {
			status = "completed"
		}
		m.decisions.WithLabelValues(status, string(d.Kind)).Inc()
	}
	return nil
}

// OrderOutcome counts one executor attempt: placed, failed, duplicate,
// locked or rate_limited.
func (m *Metrics) OrderOutcome(outcome string) {
	m.orders.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
