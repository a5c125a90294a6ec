package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
)

// ProgressSink 接收基准测试进度
type ProgressSink interface {
	SetPhase(phase entity.Phase)
	CycleDone()
	ReadDone()
}

type nopProgress struct{}

func (nopProgress) SetPhase(entity.Phase) {}
func (nopProgress) CycleDone()            {}
func (nopProgress) ReadDone()             {}

// BenchService 在多个 domain 上驱动生命周期负载
type BenchService struct {
	domains   *DomainService
	devices   *DeviceService
	templates []entity.DeviceTemplate
	metrics   *Metrics
	progress  ProgressSink
}

// BenchOption BenchService 配置项
type BenchOption func(*BenchService)

// WithDeviceTemplates 设置每个 VM 挂载的设备，为空时使用默认设备
func WithDeviceTemplates(templates []entity.DeviceTemplate) BenchOption {
	return func(s *BenchService) {
		if len(templates) > 0 {
			s.templates = templates
		}
	}
}

// WithProgress 设置进度接收者
func WithProgress(sink ProgressSink) BenchOption {
	return func(s *BenchService) {
		if sink != nil {
			s.progress = sink
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(metrics *Metrics) BenchOption {
	return func(s *BenchService) {
		s.metrics = metrics
	}
}

// NewBenchService 创建 BenchService
func NewBenchService(domains *DomainService, devices *DeviceService, opts ...BenchOption) *BenchService {
	s := &BenchService{
		domains:   domains,
		devices:   devices,
		templates: entity.DefaultDeviceTemplates(),
		progress:  nopProgress{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VMStart 创建 domain 并挂载所有设备
func (s *BenchService) VMStart(ctx context.Context, domid int) error {
	if err := s.domains.Make(ctx, domid); err != nil {
		return err
	}
	for _, tpl := range s.templates {
		dev, err := tpl.Device(domid)
		if err != nil {
			return fmt.Errorf("device template for domain %d: %w", domid, err)
		}
		if err := s.devices.Add(ctx, dev, tpl.Props(dev)); err != nil {
			return err
		}
	}
	return nil
}

// VMShutdown 请求关机后销毁 domain，关机请求的结果不影响销毁
func (s *BenchService) VMShutdown(ctx context.Context, domid int) error {
	if _, err := s.domains.Shutdown(ctx, domid, ShutdownPoweroff); err != nil {
		return err
	}
	return s.domains.Destroy(ctx, domid)
}

// VMCycle 启动后关闭一个 VM
func (s *BenchService) VMCycle(ctx context.Context, domid int) error {
	start := time.Now()
	err := s.VMStart(ctx, domid)
	if err == nil {
		err = s.VMShutdown(ctx, domid)
	}
	s.metrics.observe("cycle", start, err)
	if err != nil {
		return err
	}

	s.metrics.cycleDone()
	s.progress.CycleDone()
	return nil
}

// Sequential 依次对 domain 0..n 执行 VMCycle
func (s *BenchService) Sequential(ctx context.Context, n int) error {
	for domid := 0; domid <= n; domid++ {
		if err := s.VMCycle(ctx, domid); err != nil {
			return err
		}
	}
	return nil
}

// Parallel 同时对 domain 0..n 执行 VMCycle，等待全部完成后返回第一个错误
func (s *BenchService) Parallel(ctx context.Context, n int) error {
	var g errgroup.Group
	for domid := 0; domid <= n; domid++ {
		g.Go(func() error {
			return s.VMCycle(ctx, domid)
		})
	}
	return g.Wait()
}

// Query 顺序启动 domain 0..n，执行 rounds 轮并发读取每个 domain 的 name，再顺序关闭
// 三个阶段分别计时
func (s *BenchService) Query(ctx context.Context, rounds, n int) (entity.QueryResult, error) {
	var (
		result entity.QueryResult
		err    error
	)

	result.Start, err = Time(func() error {
		for domid := 0; domid <= n; domid++ {
			if err := s.VMStart(ctx, domid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("start domains: %w", err)
	}

	result.Query, err = Time(func() error {
		for round := 0; round < rounds; round++ {
			if err := s.readNames(ctx, n); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("query domains: %w", err)
	}

	result.Shutdown, err = Time(func() error {
		for domid := 0; domid <= n; domid++ {
			if err := s.VMShutdown(ctx, domid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("shut down domains: %w", err)
	}
	return result, nil
}

// readNames 并发读取 domain 0..n 的 name
func (s *BenchService) readNames(ctx context.Context, n int) error {
	var g errgroup.Group
	for domid := 0; domid <= n; domid++ {
		g.Go(func() error {
			if _, err := s.domains.Name(ctx, domid); err != nil {
				return err
			}
			s.metrics.readDone()
			s.progress.ReadDone()
			return nil
		})
	}
	return g.Wait()
}

// Time 执行 fn 并返回耗时（秒）
func Time(fn func() error) (float64, error) {
	start := time.Now()
	err := fn()
	return time.Since(start).Seconds(), err
}

// Run 依次执行 sequential、parallel、query 三种负载
func (s *BenchService) Run(ctx context.Context, n, rounds int) (*entity.Report, error) {
	logger := zerolog.Ctx(ctx)
	report := &entity.Report{Count: n, Rounds: rounds}

	var err error

	s.progress.SetPhase(entity.PhaseSequential)
	logger.Info().Str("phase", string(entity.PhaseSequential)).Int("count", n).Msg("Starting phase")
	if report.Sequential, err = Time(func() error { return s.Sequential(ctx, n) }); err != nil {
		return nil, s.fail(fmt.Errorf("sequential: %w", err))
	}
	logger.Info().Str("phase", string(entity.PhaseSequential)).Float64("seconds", report.Sequential).Msg("Phase finished")

	s.progress.SetPhase(entity.PhaseParallel)
	logger.Info().Str("phase", string(entity.PhaseParallel)).Int("count", n).Msg("Starting phase")
	if report.Parallel, err = Time(func() error { return s.Parallel(ctx, n) }); err != nil {
		return nil, s.fail(fmt.Errorf("parallel: %w", err))
	}
	logger.Info().Str("phase", string(entity.PhaseParallel)).Float64("seconds", report.Parallel).Msg("Phase finished")

	s.progress.SetPhase(entity.PhaseQuery)
	logger.Info().Str("phase", string(entity.PhaseQuery)).Int("count", n).Int("rounds", rounds).Msg("Starting phase")
	if report.Query, err = s.Query(ctx, rounds, n); err != nil {
		return nil, s.fail(fmt.Errorf("query: %w", err))
	}
	logger.Info().
		Str("phase", string(entity.PhaseQuery)).
		Float64("start_seconds", report.Query.Start).
		Float64("query_seconds", report.Query.Query).
		Float64("shutdown_seconds", report.Query.Shutdown).
		Msg("Phase finished")

	s.progress.SetPhase(entity.PhaseDone)
	return report, nil
}

func (s *BenchService) fail(err error) error {
	s.progress.SetPhase(entity.PhaseFailed)
	return err
}
