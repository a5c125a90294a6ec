package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

// testEnv 每个测试用例独立的内存存储和服务
type testEnv struct {
	store    *xenstore.MemoryStore
	layout   entity.Layout
	devices  *DeviceService
	domains  *DomainService
	bench    *BenchService
	progress *countingProgress
	metrics  *Metrics
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newTestStore(t)
	layout := entity.DefaultLayout()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	devices := NewDeviceService(store, layout, metrics)
	domains := NewDomainService(store, layout, devices, metrics)
	progress := &countingProgress{}
	bench := NewBenchService(domains, devices, WithProgress(progress), WithMetrics(metrics))

	return &testEnv{
		store:    store,
		layout:   layout,
		devices:  devices,
		domains:  domains,
		bench:    bench,
		progress: progress,
		metrics:  metrics,
	}
}

// newTestStore 创建测试结束时关闭的内存存储
func newTestStore(t *testing.T) *xenstore.MemoryStore {
	t.Helper()
	store := xenstore.NewMemoryStore()
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

type countingProgress struct {
	phases []entity.Phase
	cycles atomic.Int64
	reads  atomic.Int64
}

func (p *countingProgress) SetPhase(phase entity.Phase) { p.phases = append(p.phases, phase) }
func (p *countingProgress) CycleDone()                  { p.cycles.Add(1) }
func (p *countingProgress) ReadDone()                   { p.reads.Add(1) }

func mustDevice(t *testing.T, domid int, kind entity.Kind, devid int) entity.Device {
	t.Helper()
	dev, err := entity.NewDevice(
		entity.Endpoint{DomainID: domid, Kind: kind, DeviceID: devid},
		entity.Endpoint{DomainID: 0, Kind: kind, DeviceID: devid},
	)
	require.NoError(t, err)
	return dev
}

// under 返回快照中位于 p 之下（含 p）的节点
func under(snapshot map[string]string, p entity.Path) map[string]string {
	out := make(map[string]string)
	prefix := p.String()
	for k, v := range snapshot {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			out[k] = v
		}
	}
	return out
}

func exists(t *testing.T, store *xenstore.MemoryStore, p entity.Path) bool {
	t.Helper()
	_, err := store.Read(context.Background(), p.String())
	if xenstore.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}
