package xenstore

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstrumented(t *testing.T) (*InstrumentedClient, *Metrics, *MemoryStore) {
	t.Helper()

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	store := NewMemoryStore()
	return Instrument(store, metrics), metrics, store
}

func TestInstrumentedClient_CountsErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, metrics, _ := newInstrumented(t)

	require.NoError(t, c.Write(ctx, "/a", "1"))
	_, err := c.Read(ctx, "/missing")
	require.True(t, IsNotFound(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestErrors.WithLabelValues("read", "ENOENT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.requestErrors.WithLabelValues("write", "ENOENT")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.requestDuration))
}

func TestInstrumentedClient_Transactions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, metrics, store := newInstrumented(t)

	require.NoError(t, c.Transaction(ctx, func(ctx context.Context, tx Ops) error {
		return tx.Write(ctx, "/tx", "1")
	}))

	boom := errors.New("boom")
	err := c.Transaction(ctx, func(ctx context.Context, tx Ops) error {
		if err := tx.Write(ctx, "/tx", "2"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := store.Read(ctx, "/tx")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transactions.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transactions.WithLabelValues("abort")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestErrors.WithLabelValues("transaction", "other")))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
