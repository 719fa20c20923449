// Package consumer implements a typed cursor over a partitioned Kafka
// topic, built on github.com/twmb/franz-go. It assigns partitions
// manually, seeks to caller-supplied offsets, and decodes the minimal
// JSON action envelope carried in each record's "action" header, dropping
// anything that fails to decode.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNoPartitions is returned by Partitions when a topic currently has no
// known partitions.
var ErrNoPartitions = errors.New("consumer: no partitions")

// Record is one decoded log record handed to the TopicCache ingest loop.
type Record struct {
	ID        model.AggregateId
	Timestamp time.Time
	Offset    model.Offset
	Header    model.JournalAction
}

// LogConsumer is the contract TopicCache depends on. It is satisfied by
// *Adapter; tests substitute a hand-written fake.
type LogConsumer interface {
	// Assign binds the consumer to exactly these partitions.
	Assign(partitions []model.Partition) error
	// Seek sets the starting read position per partition.
	Seek(offsets map[model.Partition]model.Offset) error
	// Poll fetches whatever records are available within timeout,
	// grouped by partition in offset order. Never blocks past timeout;
	// may return an empty map.
	Poll(ctx context.Context, timeout time.Duration) (map[model.Partition][]Record, error)
	// Partitions lists the partitions currently known for the topic.
	// Returns ErrNoPartitions if the topic has none.
	Partitions(ctx context.Context) ([]model.Partition, error)
	// Close releases the underlying consumer connection.
	Close() error
}

// Config configures the broker connection. The adapter always overrides
// offset policy to earliest, runs with no consumer group, and never
// auto-commits; none of that is configurable here.
type Config struct {
	SeedBrokers []string
}

// Adapter is the franz-go backed LogConsumer implementation. It owns at
// most one underlying kgo.Client and releases it on Close.
type Adapter struct {
	cl    *kgo.Client
	admin *kadm.Client
	topic model.Topic
	log   zerolog.Logger
}

var _ LogConsumer = (*Adapter)(nil)

// NewAdapter dials the seed brokers and returns an Adapter bound to topic.
// Call Assign once partitions are known; records are not fetched until
// then.
func NewAdapter(cfg Config, topic model.Topic, log zerolog.Logger) (*Adapter, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.SeedBrokers...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("consumer: dial brokers: %w", err)
	}
	return &Adapter{
		cl:    cl,
		admin: kadm.NewClient(cl),
		topic: topic,
		log:   log,
	}, nil
}

// Partitions lists the partitions currently known for the adapter's topic.
func (a *Adapter) Partitions(ctx context.Context) ([]model.Partition, error) {
	metas, err := a.admin.ListTopics(ctx, string(a.topic))
	if err != nil {
		return nil, fmt.Errorf("consumer: list topics: %w", err)
	}
	detail, ok := metas[string(a.topic)]
	if !ok || len(detail.Partitions) == 0 {
		return nil, ErrNoPartitions
	}
	out := make([]model.Partition, 0, len(detail.Partitions))
	for _, p := range detail.Partitions {
		out = append(out, model.Partition(p.Partition))
	}
	return out, nil
}

// Assign binds the consumer to exactly the given partitions, starting
// each at the beginning of the log; Seek should be called immediately
// after to move to the intended offsets.
func (a *Adapter) Assign(partitions []model.Partition) error {
	offsets := make(map[int32]kgo.Offset, len(partitions))
	for _, p := range partitions {
		offsets[int32(p)] = kgo.NewOffset().AtStart()
	}
	a.cl.AddConsumePartitions(map[string]map[int32]kgo.Offset{string(a.topic): offsets})
	return nil
}

// Seek sets the starting read position per partition to the given
// offsets.
func (a *Adapter) Seek(offsets map[model.Partition]model.Offset) error {
	set := make(map[int32]kgo.EpochOffset, len(offsets))
	for p, o := range offsets {
		set[int32(p)] = kgo.EpochOffset{Epoch: -1, Offset: int64(o)}
	}
	if err := a.cl.SetOffsets(map[string]map[int32]kgo.EpochOffset{string(a.topic): set}); err != nil {
		return fmt.Errorf("consumer: seek: %w", err)
	}
	return nil
}

// Poll fetches whatever records are available within timeout. Records
// whose header does not decode to a known JournalAction are dropped here
// and never reach the caller.
func (a *Adapter) Poll(ctx context.Context, timeout time.Duration) (map[model.Partition][]Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := a.cl.PollFetches(pollCtx)
	for _, e := range fetches.Errors() {
		if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled) {
			continue
		}
		return nil, fmt.Errorf("consumer: poll %s/%d: %w", e.Topic, e.Partition, e.Err)
	}

	out := make(map[model.Partition][]Record)
	fetches.EachRecord(func(r *kgo.Record) {
		action, ok := decodeHeader(r)
		if !ok {
			return
		}
		p := model.Partition(r.Partition)
		out[p] = append(out[p], Record{
			ID:        model.AggregateId(r.Key),
			Timestamp: r.Timestamp,
			Offset:    model.Offset(r.Offset),
			Header:    action,
		})
	})
	return out, nil
}

// Close releases the adapter's consumer connection.
func (a *Adapter) Close() error {
	a.cl.Close()
	return nil
}

// actionEnvelope is the minimal JSON action header this adapter decodes.
// It is only the boundary decoder that turns a raw record into a
// JournalAction, not a general-purpose domain payload codec.
type actionEnvelope struct {
	Type string      `json:"type"`
	From model.SeqNr `json:"from"`
	To   model.SeqNr `json:"to"`
	UpTo model.SeqNr `json:"up_to"`
	Mark string      `json:"mark"`
}

func decodeHeader(r *kgo.Record) (model.JournalAction, bool) {
	for _, h := range r.Headers {
		if h.Key != "action" {
			continue
		}
		var env actionEnvelope
		if err := json.Unmarshal(h.Value, &env); err != nil {
			return model.JournalAction{}, false
		}
		switch env.Type {
		case "append":
			return model.Append(env.From, env.To), true
		case "delete":
			return model.Delete(env.UpTo), true
		case "mark":
			return model.Mark(env.Mark), true
		default:
			return model.JournalAction{}, false
		}
	}
	return model.JournalAction{}, false
}
