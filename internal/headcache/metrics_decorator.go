package headcache

import (
	"context"
	"time"

	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsDecorator wraps a Registry and records a latency histogram for
// every Get call, labeled by topic and outcome, using promauto so the
// metric registers itself on construction.
type metricsDecorator struct {
	next     Registry
	duration *prometheus.HistogramVec
}

var _ Registry = (*metricsDecorator)(nil)

// WithMetrics wraps next so every Get call records latency and outcome
// (labels: topic, outcome) into reg.
func WithMetrics(next Registry, reg prometheus.Registerer) Registry {
	factory := promauto.With(reg)
	return &metricsDecorator{
		next: next,
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "headcache",
			Name:      "get_duration_seconds",
			Help:      "Duration of HeadCache.Get calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic", "outcome"}),
	}
}

func (m *metricsDecorator) Get(ctx context.Context, topic model.Topic, id model.AggregateId, partition model.Partition, offset model.Offset) (model.Result, error) {
	start := time.Now()
	res, err := m.next.Get(ctx, topic, id, partition, offset)
	outcome := "error"
	if err == nil {
		outcome = res.Outcome.String()
	}
	m.duration.WithLabelValues(string(topic), outcome).Observe(time.Since(start).Seconds())
	return res, err
}

func (m *metricsDecorator) Close() error {
	return m.next.Close()
}
