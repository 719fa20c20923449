package topiccache

import "github.com/kumarlokesh/headcache/internal/model"

// listener is a pending query waiting for the cache to observe enough
// records to answer it. evaluate re-runs the decision table against the
// latest state; done is a one-shot, buffered completion so a wake-up and
// a cancellation-triggered removal never block each other.
type listener struct {
	id        model.AggregateId
	partition model.Partition
	offset    model.Offset
	done      chan model.Result
}

func newListener(id model.AggregateId, partition model.Partition, offset model.Offset) *listener {
	return &listener{
		id:        id,
		partition: partition,
		offset:    offset,
		done:      make(chan model.Result, 1),
	}
}

// evaluate re-runs the query decision table for this listener's target
// against the given state. The second return value is true if the
// listener is now satisfiable (non-Behind).
func (l *listener) evaluate(entries map[model.Partition]model.PartitionEntry) (model.Result, bool) {
	res, behind := decide(entries, l.partition, l.id, l.offset)
	return res, !behind
}

// complete delivers res without blocking. Safe to call at most once per
// listener in normal operation; a second call (e.g. a racing cancellation)
// is a silent no-op rather than a panic, since the caller may race a
// removal against a wake-up.
func (l *listener) complete(res model.Result) {
	select {
	case l.done <- res:
	default:
	}
}
