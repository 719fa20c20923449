// Command headcache is the composition root: it wires config, logging,
// metrics, the Kafka consumer adapter, and the HeadCache registry into a
// long-running process. It issues no replay decisions of its own; it
// only serves as the operational shell around internal/headcache.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumarlokesh/headcache/internal/config"
	"github.com/kumarlokesh/headcache/internal/consumer"
	"github.com/kumarlokesh/headcache/internal/eventual"
	"github.com/kumarlokesh/headcache/internal/headcache"
	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/kumarlokesh/headcache/internal/topiccache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := prometheus.NewRegistry()
	tcMetrics := newTopicCacheMetrics(reg)

	newConsumer := func(topic model.Topic) (consumer.LogConsumer, error) {
		return consumer.NewAdapter(consumer.Config{SeedBrokers: cfg.Kafka.SeedBrokers}, topic, logger)
	}

	tcCfg := topiccache.Config{
		PollTimeout:   cfg.Topiccache.PollTimeout,
		CleanInterval: cfg.Topiccache.CleanInterval,
		MaxSize:       cfg.Topiccache.MaxSize,
	}

	// No durable pointer store is wired in by default; operators who
	// need one supply their own eventual.Source and wire it here.
	pointers := eventual.NewStaticSource()

	var registry headcache.Registry = headcache.New(newConsumer, pointers, tcCfg, tcMetrics, logger)
	registry = headcache.WithLogging(registry, logger)
	registry = headcache.WithMetrics(registry, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", *metricsAddr).Msg("serving metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	for _, t := range cfg.Kafka.Topics {
		topic := model.Topic(t)
		go warmTopic(registry, topic, logger)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if err := registry.Close(); err != nil {
		logger.Error().Err(err).Msg("error during headcache shutdown")
	}
}

// warmTopic issues a harmless lookup to force the topic's TopicCache to
// initialize (and start its ingest/cleanup loops) at startup rather than
// on first real query.
func warmTopic(registry headcache.Registry, topic model.Topic, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := registry.Get(ctx, topic, "", 0, 0); err != nil {
		logger.Warn().Err(err).Str("topic", string(topic)).Msg("failed to warm topic cache")
	}
}

// topicCacheMetrics adapts topiccache.Metrics onto prometheus client_golang
// series: entries cached, pending listeners, and ingest delivery latency.
type topicCacheMetrics struct {
	entries   *prometheus.GaugeVec
	listeners *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

func newTopicCacheMetrics(reg prometheus.Registerer) *topicCacheMetrics {
	factory := promauto.With(reg)
	return &topicCacheMetrics{
		entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "headcache",
			Name:      "topic_entries",
			Help:      "Total cached entries for a topic after the last ingest round.",
		}, []string{"topic"}),
		listeners: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "headcache",
			Name:      "topic_listeners",
			Help:      "Pending listeners for a topic after the last ingest round.",
		}, []string{"topic"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "headcache",
			Name:      "round_delivery_latency_seconds",
			Help:      "Delay between a record's produce timestamp and its ingest round.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *topicCacheMetrics) Round(topic model.Topic, entries, listeners int, deliveryLatency time.Duration) {
	m.entries.WithLabelValues(string(topic)).Set(float64(entries))
	m.listeners.WithLabelValues(string(topic)).Set(float64(listeners))
	m.latency.WithLabelValues(string(topic)).Observe(deliveryLatency.Seconds())
}
