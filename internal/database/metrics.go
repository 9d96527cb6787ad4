package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pool's Prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Operations  *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// returns nil, which disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbgrid_pool_connections",
			Help: "Number of live pooled connections.",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbgrid_pool_operations_total",
			Help: "Pooled operations by engine and outcome.",
		}, []string{"engine", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbgrid_pool_operation_duration_seconds",
			Help:    "Duration of pooled operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"engine"}),
	}

	for _, c := range []prometheus.Collector{m.Connections, m.Operations, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

func (m *Metrics) observe(engine string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(engine, outcome).Inc()
	m.Duration.WithLabelValues(engine).Observe(elapsed.Seconds())
}
