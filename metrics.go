package mdrender

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "mdrender").
	Namespace string

	// Buckets are the histogram buckets for render duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithMetricsNamespace sets the metrics namespace.
func WithMetricsNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithMetricsBuckets sets the render duration histogram buckets.
func WithMetricsBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithMetricsConstLabels sets constant labels for all metrics.
func WithMetricsConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// Metrics holds the renderer's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	rendersTotal    *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	passFailures    *prometheus.CounterVec
	capabilityLoads *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Registering twice on the same registry panics, as with promauto.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "mdrender",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(reg)

	return &Metrics{
		rendersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "renders_total",
			Help:        "Total number of renders by kind and result",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "result"}),

		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "render_duration_seconds",
			Help:        "Render duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		passFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "pass_failures_total",
			Help:        "Total number of failed enhancement passes",
			ConstLabels: config.ConstLabels,
		}, []string{"pass", "policy"}),

		capabilityLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "capability_loads_total",
			Help:        "Total number of diagram and math engine loads",
			ConstLabels: config.ConstLabels,
		}, []string{"capability", "result"}),
	}
}

// Render kinds used as metric labels.
const (
	kindString = "string"
	kindPage   = "page"
)

func (m *Metrics) observeRender(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.rendersTotal.WithLabelValues(kind, resultLabel(err)).Inc()
	m.renderDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) passFailed(pass string, policy FailurePolicy) {
	if m == nil {
		return
	}
	m.passFailures.WithLabelValues(pass, policy.String()).Inc()
}

func (m *Metrics) capabilityLoaded(capability string, err error) {
	if m == nil {
		return
	}
	m.capabilityLoads.WithLabelValues(capability, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
