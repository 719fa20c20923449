package topiccache_test

import (
	"context"
	"sync"
	"time"

	"github.com/kumarlokesh/headcache/internal/consumer"
	"github.com/kumarlokesh/headcache/internal/model"
)

// fakeConsumer is a hand-written consumer.LogConsumer used by
// TopicCache's tests in place of a real Kafka connection, matching the
// teacher's habit of exercising a concrete in-memory collaborator rather
// than a mocking framework.
type fakeConsumer struct {
	mu         sync.Mutex
	partitions []model.Partition
	assigned   []model.Partition
	seeked     map[model.Partition]model.Offset
	batches    chan map[model.Partition][]consumer.Record
	closed     bool
}

func newFakeConsumer(partitions []model.Partition) *fakeConsumer {
	return &fakeConsumer{
		partitions: partitions,
		seeked:     make(map[model.Partition]model.Offset),
		batches:    make(chan map[model.Partition][]consumer.Record, 32),
	}
}

func (f *fakeConsumer) Partitions(context.Context) ([]model.Partition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.partitions) == 0 {
		return nil, consumer.ErrNoPartitions
	}
	return f.partitions, nil
}

func (f *fakeConsumer) Assign(partitions []model.Partition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = partitions
	return nil
}

func (f *fakeConsumer) Seek(offsets map[model.Partition]model.Offset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, o := range offsets {
		f.seeked[p] = o
	}
	return nil
}

func (f *fakeConsumer) Poll(ctx context.Context, timeout time.Duration) (map[model.Partition][]consumer.Record, error) {
	select {
	case b := <-f.batches:
		return b, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConsumer) push(batch map[model.Partition][]consumer.Record) {
	f.batches <- batch
}

func rec(id model.AggregateId, offset model.Offset, ts time.Time, action model.JournalAction) consumer.Record {
	return consumer.Record{ID: id, Offset: offset, Timestamp: ts, Header: action}
}
