package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

func TestBenchService_Sequential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)

	seconds, err := Time(func() error { return env.bench.Sequential(ctx, 2) })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 0.0)
	assert.Equal(t, int64(3), env.progress.cycles.Load())

	for domid := 0; domid <= 2; domid++ {
		ok, err := env.domains.Exists(ctx, domid)
		require.NoError(t, err)
		assert.False(t, ok, "domain %d", domid)
	}
	domains, err := env.store.Directory(ctx, env.layout.DomainPath(0).Parent().String())
	require.NoError(t, err)
	assert.Empty(t, domains)
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.cycles))
}

func TestBenchService_Query(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)

	result, err := env.bench.Query(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(20), env.progress.reads.Load())
	assert.GreaterOrEqual(t, result.Start, 0.0)
	assert.GreaterOrEqual(t, result.Query, 0.0)
	assert.GreaterOrEqual(t, result.Shutdown, 0.0)

	for domid := 0; domid <= 3; domid++ {
		ok, err := env.domains.Exists(ctx, domid)
		require.NoError(t, err)
		assert.False(t, ok, "domain %d", domid)
	}
}

func TestBenchService_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	const n = 8
	ctx := context.Background()

	seq := setupTestEnv(t)
	require.NoError(t, seq.bench.Sequential(ctx, n))

	par := setupTestEnv(t)
	require.NoError(t, par.bench.Parallel(ctx, n))
	assert.Equal(t, int64(n+1), par.progress.cycles.Load())

	if diff := cmp.Diff(seq.store.Snapshot(), par.store.Snapshot()); diff != "" {
		t.Errorf("parallel end state differs from sequential (-sequential +parallel):\n%s", diff)
	}

	domains, err := par.store.Directory(ctx, par.layout.DomainPath(0).Parent().String())
	require.NoError(t, err)
	assert.Empty(t, domains)

	snapshot := par.store.Snapshot()
	for domid := 0; domid <= n; domid++ {
		assert.Empty(t, under(snapshot, par.layout.DomainPath(domid)), "domain %d", domid)
		for _, kind := range entity.Kinds() {
			assert.Empty(t, under(snapshot, par.layout.BackendRoot(0).Child(kind.String()).Int(domid)))
		}
	}
}

func TestBenchService_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)

	report, err := env.bench.Run(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, []entity.Phase{
		entity.PhaseSequential,
		entity.PhaseParallel,
		entity.PhaseQuery,
		entity.PhaseDone,
	}, env.progress.phases)
	assert.Equal(t, int64(6), env.progress.cycles.Load())
	assert.Equal(t, int64(9), env.progress.reads.Load())
	assert.Equal(t, 9.0, testutil.ToFloat64(env.metrics.reads))
}

func TestBenchService_CustomTemplates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)
	bench := NewBenchService(env.domains, env.devices, WithDeviceTemplates([]entity.DeviceTemplate{
		{Kind: entity.KindVFB, DeviceID: 0},
		{Kind: entity.KindVKBD, DeviceID: 0},
	}))

	require.NoError(t, bench.VMStart(ctx, 1))
	devices, err := env.devices.ListFrontends(ctx, 1)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, entity.KindVFB, devices[0].Kind())
	assert.Equal(t, entity.KindVKBD, devices[1].Kind())

	require.NoError(t, bench.VMShutdown(ctx, 1))
	devices, err = env.devices.ListFrontends(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func newFailingBench(t *testing.T) (*BenchService, *xenstore.MockClient) {
	t.Helper()

	m := xenstore.NewMockClient()
	m.On("Remove", mock.Anything, mock.Anything).Return(xenstore.ErrIO)

	layout := entity.DefaultLayout()
	devices := NewDeviceService(m, layout, nil)
	domains := NewDomainService(m, layout, devices, nil)
	return NewBenchService(domains, devices), m
}

func TestBenchService_SequentialStopsOnError(t *testing.T) {
	t.Parallel()

	bench, m := newFailingBench(t)
	err := bench.Sequential(context.Background(), 4)
	assert.ErrorIs(t, err, xenstore.ErrIO)
	m.AssertNumberOfCalls(t, "Remove", 1)
}

func TestBenchService_ParallelWaitsForAll(t *testing.T) {
	t.Parallel()

	bench, m := newFailingBench(t)
	err := bench.Parallel(context.Background(), 4)
	assert.ErrorIs(t, err, xenstore.ErrIO)
	m.AssertNumberOfCalls(t, "Remove", 5)
}

func TestBenchService_RunReportsFailure(t *testing.T) {
	t.Parallel()

	bench, _ := newFailingBench(t)
	progress := &countingProgress{}
	WithProgress(progress)(bench)

	_, err := bench.Run(context.Background(), 1, 1)
	assert.ErrorIs(t, err, xenstore.ErrIO)
	assert.Equal(t, []entity.Phase{entity.PhaseSequential, entity.PhaseFailed}, progress.phases)
}
