package headcache

import (
	"context"

	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/rs/zerolog"
)

// loggingDecorator wraps a Registry and logs each Get at debug level with
// structured fields: topic, partition, aggregate_id, and the resulting
// outcome or error.
type loggingDecorator struct {
	next Registry
	log  zerolog.Logger
}

var _ Registry = (*loggingDecorator)(nil)

// WithLogging wraps next so every Get is logged at debug level.
func WithLogging(next Registry, log zerolog.Logger) Registry {
	return &loggingDecorator{next: next, log: log}
}

func (l *loggingDecorator) Get(ctx context.Context, topic model.Topic, id model.AggregateId, partition model.Partition, offset model.Offset) (model.Result, error) {
	res, err := l.next.Get(ctx, topic, id, partition, offset)
	evt := l.log.Debug().
		Str("topic", string(topic)).
		Int32("partition", int32(partition)).
		Str("aggregate_id", string(id)).
		Int64("offset", int64(offset))
	if err != nil {
		evt.Err(err).Msg("headcache get failed")
		return res, err
	}
	evt.Str("outcome", res.Outcome.String()).Msg("headcache get")
	return res, err
}

func (l *loggingDecorator) Close() error {
	return l.next.Close()
}
