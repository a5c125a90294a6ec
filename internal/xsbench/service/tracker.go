package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
)

// Tracker 记录当前运行状态，实现 ProgressSink
type Tracker struct {
	cycles atomic.Int64
	reads  atomic.Int64

	mu     sync.RWMutex
	status entity.Status
}

// NewTracker 创建处于 idle 阶段的 Tracker
func NewTracker(runID string, n, rounds int) *Tracker {
	return &Tracker{
		status: entity.Status{
			RunID:  runID,
			Phase:  entity.PhaseIdle,
			Count:  n,
			Rounds: rounds,
		},
	}
}

// SetPhase 实现 ProgressSink
func (t *Tracker) SetPhase(phase entity.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.StartedAt.IsZero() && phase != entity.PhaseIdle {
		t.status.StartedAt = time.Now()
	}
	t.status.Phase = phase
}

// CycleDone 实现 ProgressSink
func (t *Tracker) CycleDone() {
	t.cycles.Add(1)
}

// ReadDone 实现 ProgressSink
func (t *Tracker) ReadDone() {
	t.reads.Add(1)
}

// Finish 记录结果，err 不为空时阶段为 failed
func (t *Tracker) Finish(report *entity.Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Report = report
	if err != nil {
		t.status.Phase = entity.PhaseFailed
		t.status.Error = err.Error()
		return
	}
	t.status.Phase = entity.PhaseDone
}

// Status 返回状态快照
func (t *Tracker) Status() *entity.Status {
	t.mu.RLock()
	status := t.status
	t.mu.RUnlock()

	status.Cycles = t.cycles.Load()
	status.Reads = t.reads.Load()
	return &status
}
