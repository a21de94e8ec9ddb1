package state

import (
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "state"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// The duration of accesses to the state store labeled by which method
	// was called on the store.
	AccessDurationSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library. Optional labelsAndValues are label pairs applied to all metrics.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		AccessDurationSeconds: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "access_duration_seconds",
			Help:      "Duration of accesses to the state store labeled by which method was called on the store.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0002, 10, 5),
		}, append(labels, "method")),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		AccessDurationSeconds: discard.NewHistogram(),
	}
}

func (m *Metrics) observe(method string, start time.Time) {
	m.AccessDurationSeconds.With("method", method).Observe(time.Since(start).Seconds())
}
