package monitor

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	coalesced     prometheus.Counter
	orders        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	heldPositions prometheus.Gauge
	passDuration  prometheus.Histogram
}

// NewMetrics registers the collectors on reg, or on a fresh registry when reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "reconcile_passes_total", Help: "Reconciliation passes run"},
			[]string{"origin"},
		),
		coalesced: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "reconcile_coalesced_total", Help: "Requests merged into a pending pass"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
			[]string{"symbol", "side", "trade_type", "result"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sizing_rejections_total", Help: "Entries rejected by the sizer"},
			[]string{"reason"},
		),
		heldPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "held_positions", Help: "Positions held after the last refresh"},
		),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_pass_duration_seconds",
			Help:    "Wall time of a reconciliation pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(m.passes, m.coalesced, m.orders, m.rejections, m.heldPositions, m.passDuration,
		collectors.NewGoCollector())
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PassCompleted(origin string, d time.Duration, held int) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(origin).Inc()
	m.passDuration.Observe(d.Seconds())
	m.heldPositions.Set(float64(held))
}

func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) Order(symbol, side, tradeType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.orders.WithLabelValues(symbol, side, tradeType, result).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Held(n int) {
	if m == nil {
		return
	}
	m.heldPositions.Set(float64(n))
}

// RuntimeSnapshot is a point-in-time process view for the status endpoint.
type RuntimeSnapshot struct {
	GoroutineCount int       `json:"goroutine_count"`
	HeapAlloc      uint64    `json:"heap_alloc_bytes"`
	HeapSys        uint64    `json:"heap_sys_bytes"`
	Timestamp      time.Time `json:"timestamp"`
}

// Runtime returns current process statistics.
func Runtime() RuntimeSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return RuntimeSnapshot{
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		HeapSys:        memStats.HeapSys,
		Timestamp:      time.Now(),
	}
}
