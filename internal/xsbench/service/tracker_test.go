package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
)

func TestTracker(t *testing.T) {
	t.Parallel()

	tracker := NewTracker("run-1", 2, 3)
	status := tracker.Status()
	assert.Equal(t, entity.PhaseIdle, status.Phase)
	assert.True(t, status.StartedAt.IsZero())

	env := setupTestEnv(t)
	WithProgress(tracker)(env.bench)

	report, err := env.bench.Run(context.Background(), 2, 3)
	require.NoError(t, err)
	tracker.Finish(report, nil)

	status = tracker.Status()
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, entity.PhaseDone, status.Phase)
	assert.Equal(t, int64(6), status.Cycles)
	assert.Equal(t, int64(9), status.Reads)
	assert.False(t, status.StartedAt.IsZero())
	assert.Same(t, report, status.Report)

	tracker.Finish(nil, errors.New("boom"))
	status = tracker.Status()
	assert.Equal(t, entity.PhaseFailed, status.Phase)
	assert.Equal(t, "boom", status.Error)
}
