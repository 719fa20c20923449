// Package headcache implements the HeadCache registry: the
// lazily-initialized, per-topic collection of TopicCaches that answers
// replay-position queries and tears itself down cleanly on shutdown.
package headcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kumarlokesh/headcache/internal/consumer"
	"github.com/kumarlokesh/headcache/internal/eventual"
	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/kumarlokesh/headcache/internal/topiccache"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
)

// ErrClosed is returned by Get once the registry has been closed.
var ErrClosed = errors.New("headcache: registry closed")

// Registry is the contract the rest of the system depends on. HeadCache
// satisfies it directly; metricsDecorator and loggingDecorator wrap it
// without altering the Result returned.
type Registry interface {
	Get(ctx context.Context, topic model.Topic, id model.AggregateId, partition model.Partition, offset model.Offset) (model.Result, error)
	Close() error
}

// ConsumerFactory builds the LogConsumer a new TopicCache should use for a
// given topic. Kept as a function value so HeadCache never imports
// franz-go directly; cmd/headcache supplies the real adapter constructor.
type ConsumerFactory func(topic model.Topic) (consumer.LogConsumer, error)

var _ Registry = (*HeadCache)(nil)

// HeadCache lazily constructs one TopicCache per topic on first query and
// serves every subsequent query for that topic from the same cache.
// Construction races are resolved by a per-topic sync.Once cell so
// concurrent first-queries for the same topic share one TopicCache build.
type HeadCache struct {
	newConsumer ConsumerFactory
	pointers    eventual.Source
	cfg         topiccache.Config
	metrics     topiccache.Metrics
	log         zerolog.Logger

	cells  sync.Map // model.Topic -> *cell
	closed atomic.Bool
}

type cell struct {
	once sync.Once
	tc   *topiccache.TopicCache
	err  error
}

// New builds a HeadCache. metrics may be nil (NoopMetrics is used).
func New(newConsumer ConsumerFactory, pointers eventual.Source, cfg topiccache.Config, metrics topiccache.Metrics, log zerolog.Logger) *HeadCache {
	if metrics == nil {
		metrics = topiccache.NoopMetrics{}
	}
	return &HeadCache{
		newConsumer: newConsumer,
		pointers:    pointers,
		cfg:         cfg,
		metrics:     metrics,
		log:         log,
	}
}

// Get resolves a query against the topic's TopicCache, constructing it on
// first use. Returns ErrClosed if the registry has already been closed.
func (h *HeadCache) Get(ctx context.Context, topic model.Topic, id model.AggregateId, partition model.Partition, offset model.Offset) (model.Result, error) {
	if h.closed.Load() {
		return model.Result{}, ErrClosed
	}

	c, err := h.topicCache(ctx, topic)
	if err != nil {
		return model.Result{}, err
	}
	return c.Get(ctx, id, partition, offset)
}

func (h *HeadCache) topicCache(ctx context.Context, topic model.Topic) (*topiccache.TopicCache, error) {
	v, _ := h.cells.LoadOrStore(topic, &cell{})
	c := v.(*cell)
	c.once.Do(func() {
		cons, err := h.newConsumer(topic)
		if err != nil {
			c.err = fmt.Errorf("headcache: build consumer for %s: %w", topic, err)
			return
		}
		tc, err := topiccache.New(ctx, topic, cons, h.pointers, h.cfg, h.metrics, h.log)
		if err != nil {
			c.err = err
			return
		}
		c.tc = tc
	})
	return c.tc, c.err
}

// Close flips the closed gate, refusing new queries, then tears down every
// constructed TopicCache concurrently.
func (h *HeadCache) Close() error {
	h.closed.Store(true)

	p := pool.NewWithResults[error]()
	h.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		if c.tc != nil {
			p.Go(func() error { return c.tc.Close() })
		}
		return true
	})
	errs := p.Wait()

	var joined []error
	for _, e := range errs {
		if e != nil {
			joined = append(joined, e)
		}
	}
	return errors.Join(joined...)
}
