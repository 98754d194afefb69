package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records engine activity on a Prometheus registry and keeps atomic
// totals for a cheap in-process snapshot. A nil *Metrics is a no-op.
type Metrics struct {
	fetches      *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	fastTicks    *prometheus.CounterVec
	loadFailures prometheus.Counter
	engineState  *prometheus.GaugeVec
	violations   prometheus.Counter
	orders       *prometheus.CounterVec
	streamConns  prometheus.Gauge

	fetchOK     atomic.Uint64
	fetchErr    atomic.Uint64
	remoteTicks atomic.Uint64
	localTicks  atomic.Uint64
	ordersTotal atomic.Uint64
	violTotal   atomic.Uint64
	activeConns atomic.Int32
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "market_engine_fetches_total",
			Help: "Gateway fetches by kind and outcome",
		}, []string{"kind", "outcome"}),
		fetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "market_engine_fetch_duration_seconds",
			Help:    "Gateway fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		fastTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "market_engine_fast_ticks_total",
			Help: "Fast cadence ticks by branch (remote, local, fallback)",
		}, []string{"branch"}),
		loadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "market_engine_load_failures_total",
			Help: "Failed sources across refresh cycles",
		}),
		engineState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_engine_state",
			Help: "1 for the current engine state",
		}, []string{"state"}),
		violations: f.NewCounter(prometheus.CounterOpts{
			Name: "market_engine_invariant_violations_total",
			Help: "Rejected state updates",
		}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "market_engine_orders_total",
			Help: "Locally placed orders by side and result",
		}, []string{"side", "result"}),
		streamConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "market_engine_stream_connections",
			Help: "Open snapshot stream connections",
		}),
	}
}

// ObserveFetch records one settled gateway call.
func (m *Metrics) ObserveFetch(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.fetchErr.Add(1)
	} else {
		m.fetchOK.Add(1)
	}
	m.fetches.WithLabelValues(kind, outcome).Inc()
	m.fetchLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// FastTick records which branch a fast tick took.
func (m *Metrics) FastTick(branch string) {
	if m == nil {
		return
	}
	if branch == "remote" {
		m.remoteTicks.Add(1)
	} else {
		m.localTicks.Add(1)
	}
	m.fastTicks.WithLabelValues(branch).Inc()
}

// LoadFailures adds n failed sources.
func (m *Metrics) LoadFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.loadFailures.Add(float64(n))
}

// SetState marks state as current.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	m.engineState.Reset()
	m.engineState.WithLabelValues(state).Set(1)
}

// InvariantViolation counts a rejected update.
func (m *Metrics) InvariantViolation() {
	if m == nil {
		return
	}
	m.violTotal.Add(1)
	m.violations.Inc()
}

// OrderPlaced counts a PlaceOrder call.
func (m *Metrics) OrderPlaced(side string, err error) {
	if m == nil {
		return
	}
	result := "accepted"
	if err != nil {
		result = "rejected"
	} else {
		m.ordersTotal.Add(1)
	}
	m.orders.WithLabelValues(side, result).Inc()
}

// IncrementConnections increments open stream connections by 1.
func (m *Metrics) IncrementConnections() {
	if m == nil {
		return
	}
	m.activeConns.Add(1)
	m.streamConns.Inc()
}

// DecrementConnections decrements open stream connections by 1.
func (m *Metrics) DecrementConnections() {
	if m == nil {
		return
	}
	m.activeConns.Add(-1)
	m.streamConns.Dec()
}

// MetricsSnapshot is a point-in-time view of the atomic totals.
type MetricsSnapshot struct {
	FetchesOK         uint64    `json:"fetches_ok"`
	FetchErrors       uint64    `json:"fetch_errors"`
	RemoteTicks       uint64    `json:"remote_ticks"`
	LocalTicks        uint64    `json:"local_ticks"`
	OrdersPlaced      uint64    `json:"orders_placed"`
	Violations        uint64    `json:"violations"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current totals.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Timestamp: time.Now()}
	}
	return MetricsSnapshot{
		FetchesOK:         m.fetchOK.Load(),
		FetchErrors:       m.fetchErr.Load(),
		RemoteTicks:       m.remoteTicks.Load(),
		LocalTicks:        m.localTicks.Load(),
		OrdersPlaced:      m.ordersTotal.Load(),
		Violations:        m.violTotal.Load(),
		ActiveConnections: m.activeConns.Load(),
		Timestamp:         time.Now(),
	}
}
