// Package topiccache implements the per-topic state machine that ingests
// polled log records, maintains partition-keyed entry maps with trimming,
// serves queries, manages pending listeners, and periodically reconciles
// against the eventual pointer source.
package topiccache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kumarlokesh/headcache/internal/consumer"
	"github.com/kumarlokesh/headcache/internal/eventual"
	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
)

// Metrics is the round-metric sink a TopicCache reports into after every
// ingest round: total entry count after the merge, pending listener
// count, and delivery latency.
type Metrics interface {
	Round(topic model.Topic, entries, listeners int, deliveryLatency time.Duration)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

// Round implements Metrics.
func (NoopMetrics) Round(model.Topic, int, int, time.Duration) {}

// Config holds a TopicCache's tunables.
type Config struct {
	// PollTimeout bounds a single ingest poll. Default 10ms.
	PollTimeout time.Duration
	// CleanInterval is the period between cleanup cycles. Default 3s.
	CleanInterval time.Duration
	// MaxSize is the upper bound on total entry count across partitions
	// for this topic. Default 100000.
	MaxSize int
}

// DefaultConfig returns the recommended default tunables.
func DefaultConfig() Config {
	return Config{
		PollTimeout:   10 * time.Millisecond,
		CleanInterval: 3 * time.Second,
		MaxSize:       100_000,
	}
}

// TopicCache maintains and serves the cached state for exactly one topic.
// It owns the ingest loop, the cleanup loop, and a single
// mutation-serialized state cell.
type TopicCache struct {
	topic    model.Topic
	cfg      Config
	consumer consumer.LogConsumer
	eventual eventual.Source
	metrics  Metrics
	log      zerolog.Logger

	// mu serializes every state transform: ingest merges, cleanup
	// rounds, and listener registration. Reads of the atomic snapshot
	// below never take mu.
	mu        sync.Mutex
	state     atomic.Value // holds map[model.Partition]model.PartitionEntry
	listeners []*listener

	failed atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes a TopicCache: it seeds entries from the eventual
// pointer source, discovers partitions with bounded retry, assigns and
// seeks the consumer, then spawns the ingest and cleanup loops.
func New(
	ctx context.Context,
	topic model.Topic,
	cons consumer.LogConsumer,
	pointerSource eventual.Source,
	cfg Config,
	metrics Metrics,
	log zerolog.Logger,
) (*TopicCache, error) {
	pointers, err := pointerSource.Pointers(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("topiccache: fetch pointers for %s: %w", topic, err)
	}

	entries := make(map[model.Partition]model.PartitionEntry, len(pointers))
	for p, off := range pointers {
		entries[p] = model.NewPartitionEntry(p, off)
	}

	partitions, err := discoverPartitions(ctx, cons)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPartitionDiscoveryFailed, topic, err)
	}
	for _, p := range partitions {
		if _, ok := entries[p]; !ok {
			entries[p] = model.NewPartitionEntry(p, 0)
		}
	}

	if err := cons.Assign(partitions); err != nil {
		return nil, fmt.Errorf("topiccache: assign %s: %w", topic, err)
	}
	seekTo := make(map[model.Partition]model.Offset, len(partitions))
	for _, p := range partitions {
		if off, ok := pointers[p]; ok {
			seekTo[p] = off + 1
		} else {
			seekTo[p] = 0
		}
	}
	if err := cons.Seek(seekTo); err != nil {
		return nil, fmt.Errorf("topiccache: seek %s: %w", topic, err)
	}

	if metrics == nil {
		metrics = NoopMetrics{}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	tc := &TopicCache{
		topic:    topic,
		cfg:      cfg,
		consumer: cons,
		eventual: pointerSource,
		metrics:  metrics,
		log:      log,
		cancel:   cancel,
	}
	tc.state.Store(entries)

	tc.wg.Add(2)
	go tc.ingestLoop(loopCtx)
	go tc.cleanupLoop(loopCtx)

	return tc, nil
}

// discoverPartitions resolves partitions with bounded-retry full-jitter
// backoff (base 3ms, cap 300ms, at least 3 attempts).
func discoverPartitions(ctx context.Context, cons consumer.LogConsumer) ([]model.Partition, error) {
	// With RandomizationFactor 1 the library draws each wait uniformly from
	// [0, 2 x current interval], so the interval and its cap are set to half
	// of 3ms and 300ms: waits are uniform in [0, min(300ms, 3ms * 2^n)].
	b := &backoff.ExponentialBackOff{
		InitialInterval:     1500 * time.Microsecond,
		RandomizationFactor: 1,
		Multiplier:          2,
		MaxInterval:         150 * time.Millisecond,
		MaxElapsedTime:      0, // bounded below by WithMaxRetries, not elapsed time
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	bounded := backoff.WithMaxRetries(b, 4) // 5 total attempts, well over the required >=3
	bounded = backoff.WithContext(bounded, ctx)

	var partitions []model.Partition
	operation := func() error {
		ps, err := cons.Partitions(ctx)
		if err != nil {
			return err
		}
		if len(ps) == 0 {
			return consumer.ErrNoPartitions
		}
		partitions = ps
		return nil
	}
	if err := backoff.Retry(operation, bounded); err != nil {
		return nil, err
	}
	return partitions, nil
}

func (tc *TopicCache) snapshot() map[model.Partition]model.PartitionEntry {
	return tc.state.Load().(map[model.Partition]model.PartitionEntry)
}

// Get resolves (id, partition, offset) against the current snapshot,
// registering a listener and awaiting it if the partition is behind the
// requested offset. If the ingest loop has poisoned the cache, Get fails
// open: it returns an Invalid result alongside ErrFailed so callers can
// distinguish a deliberate "ask the durable store" answer from a poisoned
// cache while still treating both as non-fatal.
func (tc *TopicCache) Get(ctx context.Context, id model.AggregateId, partition model.Partition, offset model.Offset) (model.Result, error) {
	if tc.failed.Load() {
		return model.InvalidResult(), ErrFailed
	}

	if res, behind := decide(tc.snapshot(), partition, id, offset); !behind {
		return res, nil
	}

	tc.mu.Lock()
	if res, behind := decide(tc.snapshot(), partition, id, offset); !behind {
		tc.mu.Unlock()
		return res, nil
	}
	l := newListener(id, partition, offset)
	tc.listeners = append(tc.listeners, l)
	tc.mu.Unlock()

	select {
	case res := <-l.done:
		return res, nil
	case <-ctx.Done():
		tc.removeListener(l)
		return model.Result{}, ctx.Err()
	}
}

func (tc *TopicCache) removeListener(target *listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for i, l := range tc.listeners {
		if l == target {
			last := len(tc.listeners) - 1
			tc.listeners[i] = tc.listeners[last]
			tc.listeners[last] = nil
			tc.listeners = tc.listeners[:last]
			return
		}
	}
}

// wakeListeners must be called with mu held, immediately after a state
// transition commits. It evaluates every pending listener against the new
// state, dispatching satisfied listeners' completions in parallel and
// retaining the rest.
func (tc *TopicCache) wakeListeners(entries map[model.Partition]model.PartitionEntry) {
	remaining := tc.listeners[:0]
	p := pool.New()
	for _, l := range tc.listeners {
		l := l
		if res, satisfied := l.evaluate(entries); satisfied {
			p.Go(func() { l.complete(res) })
		} else {
			remaining = append(remaining, l)
		}
	}
	p.Wait()
	tc.listeners = remaining
}

func (tc *TopicCache) ingestLoop(ctx context.Context) {
	defer tc.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !tc.ingestRound(ctx) {
			return
		}
	}
}

// ingestRound runs one poll+merge cycle and reports whether the loop
// should continue. A panic or an uncaught poll error poisons the cache
// and stops the loop; cancellation is cooperative, only observed at the
// next poll boundary.
func (tc *TopicCache) ingestRound(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tc.log.Error().Interface("panic", r).Str("topic", string(tc.topic)).Msg("ingest loop panicked")
			tc.failed.Store(true)
			ok = false
		}
	}()

	batch, err := tc.consumer.Poll(ctx, tc.cfg.PollTimeout)
	if err != nil {
		tc.log.Error().Err(err).Str("topic", string(tc.topic)).Msg("ingest loop failed")
		tc.failed.Store(true)
		return false
	}
	if len(batch) == 0 {
		return true
	}

	candidate, firstTimestampUnixNano := buildCandidate(batch)

	tc.mu.Lock()
	merged := combineAndTrim(tc.snapshot(), candidate, tc.cfg.MaxSize)
	tc.state.Store(merged)
	tc.wakeListeners(merged)
	listenerCount := len(tc.listeners)
	tc.mu.Unlock()

	entryCount := 0
	for _, pe := range merged {
		entryCount += len(pe.Entries)
	}
	var deliveryLatency time.Duration
	if firstTimestampUnixNano != 0 {
		deliveryLatency = time.Since(time.Unix(0, firstTimestampUnixNano))
	}
	tc.metrics.Round(tc.topic, entryCount, listenerCount, deliveryLatency)
	return true
}

func (tc *TopicCache) cleanupLoop(ctx context.Context) {
	defer tc.wg.Done()
	ticker := time.NewTicker(tc.cfg.CleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tc.cleanupRound(ctx)
		}
	}
}

// cleanupRound runs one reconcile cycle against the eventual pointer
// source. Any error or panic is logged and swallowed: cleanup is
// advisory, and entry growth is bounded by size-based trimming
// regardless of whether cleanup ever runs.
func (tc *TopicCache) cleanupRound(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			tc.log.Error().Interface("panic", r).Str("topic", string(tc.topic)).Msg("cleanup round panicked")
		}
	}()

	pointers, err := tc.eventual.Pointers(ctx, tc.topic)
	if err != nil {
		tc.log.Warn().Err(err).Str("topic", string(tc.topic)).Msg("cleanup round failed")
		return
	}

	tc.mu.Lock()
	newEntries, removed := removeUntil(tc.snapshot(), pointers)
	tc.state.Store(newEntries)
	tc.wakeListeners(newEntries)
	tc.mu.Unlock()

	tc.log.Debug().Str("topic", string(tc.topic)).Int("removed", removed).Msg("cleanup round")
}

// Close cancels the ingest and cleanup loops and releases the log
// consumer. It blocks until both background tasks have observed
// cancellation.
func (tc *TopicCache) Close() error {
	tc.cancel()
	tc.wg.Wait()
	return tc.consumer.Close()
}
