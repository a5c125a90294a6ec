package xenstore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 存储请求的 Prometheus 指标
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	txAttempts      prometheus.Histogram
	transactions    *prometheus.CounterVec
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xsbench",
				Subsystem: "store",
				Name:      "request_duration_seconds",
				Help:      "Duration of xenstore requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16), // 50us to ~1.6s
			},
			[]string{"op"},
		),
		requestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xsbench",
				Subsystem: "store",
				Name:      "request_errors_total",
				Help:      "Total number of failed xenstore requests",
			},
			[]string{"op", "code"},
		),
		txAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "xsbench",
				Subsystem: "store",
				Name:      "transaction_attempts",
				Help:      "Number of times a transaction body ran before it finished",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xsbench",
				Subsystem: "store",
				Name:      "transactions_total",
				Help:      "Total number of transactions by result",
			},
			[]string{"result"},
		),
	}

	collectors := []prometheus.Collector{
		m.requestDuration,
		m.requestErrors,
		m.txAttempts,
		m.transactions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	code := "other"
	var xsErr *Error
	if errors.As(err, &xsErr) {
		code = xsErr.Code
	}
	m.requestErrors.WithLabelValues(op, code).Inc()
}

// InstrumentedClient 为每个请求记录耗时和错误的 Client 装饰器
type InstrumentedClient struct {
	next    Client
	metrics *Metrics
}

// Instrument 包装 Client
func Instrument(next Client, metrics *Metrics) *InstrumentedClient {
	return &InstrumentedClient{next: next, metrics: metrics}
}

// instrumentedOps 包装事务内的操作
type instrumentedOps struct {
	next    Ops
	metrics *Metrics
}

func (o instrumentedOps) Read(ctx context.Context, path string) (string, error) {
	start := time.Now()
	v, err := o.next.Read(ctx, path)
	o.metrics.observe("read", start, err)
	return v, err
}

func (o instrumentedOps) Write(ctx context.Context, path, value string) error {
	start := time.Now()
	err := o.next.Write(ctx, path, value)
	o.metrics.observe("write", start, err)
	return err
}

func (o instrumentedOps) Mkdir(ctx context.Context, path string) error {
	start := time.Now()
	err := o.next.Mkdir(ctx, path)
	o.metrics.observe("mkdir", start, err)
	return err
}

func (o instrumentedOps) Directory(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	names, err := o.next.Directory(ctx, path)
	o.metrics.observe("directory", start, err)
	return names, err
}

func (o instrumentedOps) Remove(ctx context.Context, path string) error {
	start := time.Now()
	err := o.next.Remove(ctx, path)
	o.metrics.observe("rm", start, err)
	return err
}

func (o instrumentedOps) SetPermissions(ctx context.Context, path string, acl ACL) error {
	start := time.Now()
	err := o.next.SetPermissions(ctx, path, acl)
	o.metrics.observe("set_perms", start, err)
	return err
}

func (o instrumentedOps) GetPermissions(ctx context.Context, path string) (ACL, error) {
	start := time.Now()
	acl, err := o.next.GetPermissions(ctx, path)
	o.metrics.observe("get_perms", start, err)
	return acl, err
}

func (c *InstrumentedClient) ops() instrumentedOps {
	return instrumentedOps{next: c.next, metrics: c.metrics}
}

// Read 实现 Ops.Read
func (c *InstrumentedClient) Read(ctx context.Context, path string) (string, error) {
	return c.ops().Read(ctx, path)
}

// Write 实现 Ops.Write
func (c *InstrumentedClient) Write(ctx context.Context, path, value string) error {
	return c.ops().Write(ctx, path, value)
}

// Mkdir 实现 Ops.Mkdir
func (c *InstrumentedClient) Mkdir(ctx context.Context, path string) error {
	return c.ops().Mkdir(ctx, path)
}

// Directory 实现 Ops.Directory
func (c *InstrumentedClient) Directory(ctx context.Context, path string) ([]string, error) {
	return c.ops().Directory(ctx, path)
}

// Remove 实现 Ops.Remove
func (c *InstrumentedClient) Remove(ctx context.Context, path string) error {
	return c.ops().Remove(ctx, path)
}

// SetPermissions 实现 Ops.SetPermissions
func (c *InstrumentedClient) SetPermissions(ctx context.Context, path string, acl ACL) error {
	return c.ops().SetPermissions(ctx, path, acl)
}

// GetPermissions 实现 Ops.GetPermissions
func (c *InstrumentedClient) GetPermissions(ctx context.Context, path string) (ACL, error) {
	return c.ops().GetPermissions(ctx, path)
}

// Transaction 实现 Client.Transaction，事务体每执行一次计一次尝试
func (c *InstrumentedClient) Transaction(ctx context.Context, fn TxFunc) error {
	start := time.Now()
	attempts := 0
	err := c.next.Transaction(ctx, func(ctx context.Context, tx Ops) error {
		attempts++
		return fn(ctx, instrumentedOps{next: tx, metrics: c.metrics})
	})
	c.metrics.observe("transaction", start, err)
	c.metrics.txAttempts.Observe(float64(attempts))

	result := "commit"
	if err != nil {
		result = "abort"
	}
	c.metrics.transactions.WithLabelValues(result).Inc()
	return err
}

// Close 实现 Client.Close
func (c *InstrumentedClient) Close() error {
	return c.next.Close()
}

var _ Client = (*InstrumentedClient)(nil)
