package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 生命周期操作的 Prometheus 指标
// nil 的 *Metrics 不记录任何数据
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	cycles   prometheus.Counter
	reads    prometheus.Counter
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xsbench",
				Subsystem: "lifecycle",
				Name:      "duration_seconds",
				Help:      "Duration of domain and device lifecycle operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"op"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xsbench",
				Subsystem: "lifecycle",
				Name:      "failures_total",
				Help:      "Total number of failed lifecycle operations",
			},
			[]string{"op"},
		),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsbench",
			Subsystem: "bench",
			Name:      "vm_cycles_total",
			Help:      "Total number of completed VM start and shutdown cycles",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsbench",
			Subsystem: "bench",
			Name:      "query_reads_total",
			Help:      "Total number of name reads issued by the query workload",
		}),
	}

	for _, c := range []prometheus.Collector{m.duration, m.failures, m.cycles, m.reads} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) cycleDone() {
	if m != nil {
		m.cycles.Inc()
	}
}

func (m *Metrics) readDone() {
	if m != nil {
		m.reads.Inc()
	}
}
