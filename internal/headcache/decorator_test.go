package headcache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kumarlokesh/headcache/internal/headcache"
	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	res    model.Result
	err    error
	closed bool
}

func (f *fakeRegistry) Get(context.Context, model.Topic, model.AggregateId, model.Partition, model.Offset) (model.Result, error) {
	return f.res, f.err
}
func (f *fakeRegistry) Close() error {
	f.closed = true
	return nil
}

func TestWithMetrics_RecordsOutcomeLabel(t *testing.T) {
	fake := &fakeRegistry{res: model.ValidResult(model.EmptyInfo())}
	reg := prometheus.NewRegistry()
	wrapped := headcache.WithMetrics(fake, reg)

	_, err := wrapped.Get(context.Background(), "orders", "A", 0, 0)
	require.NoError(t, err)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)

	require.NoError(t, wrapped.Close())
	assert.True(t, fake.closed)
}

func TestWithMetrics_RecordsErrorOutcomeOnFailure(t *testing.T) {
	fake := &fakeRegistry{err: errors.New("boom")}
	reg := prometheus.NewRegistry()
	wrapped := headcache.WithMetrics(fake, reg)

	_, err := wrapped.Get(context.Background(), "orders", "A", 0, 0)
	require.Error(t, err)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range metricFamilies {
		for _, m := range mf.Metric {
			for _, l := range m.Label {
				if l.GetName() == "outcome" && l.GetValue() == "error" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "expected an 'error' outcome label to be recorded")
}

func TestWithLogging_PassesThroughResultUnchanged(t *testing.T) {
	fake := &fakeRegistry{res: model.ValidResult(model.NonEmptyInfo(3, nil))}
	wrapped := headcache.WithLogging(fake, zerolog.Nop())

	res, err := wrapped.Get(context.Background(), "orders", "A", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, fake.res, res)

	require.NoError(t, wrapped.Close())
	assert.True(t, fake.closed)
}
