// Package xsbench 提供 xsbench 的主入口和初始化逻辑
package xsbench

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimmicro/grace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jjd27/xenstore-clients/internal/xsbench/api"
	"github.com/jjd27/xenstore-clients/internal/xsbench/config"
	"github.com/jjd27/xenstore-clients/internal/xsbench/service"
	"github.com/jjd27/xenstore-clients/pkg/idgen"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg     *config.Config
	out     io.Writer
	runID   string
	client  xenstore.Client
	tracker *service.Tracker
	bench   *service.BenchService
	api     *api.API
}

// SetupLogger 创建输出到标准错误的 logger 并设为默认 logger
func SetupLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

// New 连接存储并创建服务，结果写入 out
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}

	runID, err := idgen.GenerateRunID()
	if err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx).With().Str("run_id", runID).Logger()

	// 1. 创建指标
	registry := prometheus.NewRegistry()
	storeMetrics, err := xenstore.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	metrics, err := service.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register lifecycle metrics: %w", err)
	}

	// 2. 创建存储客户端，整个进程共享一个连接
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	instrumented := xenstore.Instrument(client, storeMetrics)
	logger.Info().Str("store", cfg.Store).Str("path", cfg.StorePath).Str("prefix", cfg.Prefix).Msg("Store client ready")

	// 3. 创建服务
	devices := service.NewDeviceService(instrumented, layout, metrics)
	domains := service.NewDomainService(instrumented, layout, devices, metrics)
	tracker := service.NewTracker(runID, cfg.Count, cfg.Rounds)
	bench := service.NewBenchService(domains, devices,
		service.WithDeviceTemplates(cfg.Devices),
		service.WithProgress(tracker),
		service.WithMetrics(metrics),
	)

	server := &Server{
		cfg:     cfg,
		out:     out,
		runID:   runID,
		client:  instrumented,
		tracker: tracker,
		bench:   bench,
	}

	// 4. 创建状态接口
	if cfg.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		server.api = api.New(cfg.Listen, tracker, domains, devices, registry)
	}
	return server, nil
}

func newClient(ctx context.Context, cfg *config.Config) (xenstore.Client, error) {
	if cfg.Store == config.StoreMemory {
		return xenstore.NewMemoryStore(), nil
	}
	client, err := xenstore.Dial(ctx, cfg.StorePath, xenstore.WithMaxTransactionRetries(cfg.MaxTransactionRetries))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Run 执行基准测试并输出结果，配置了 Listen 时同时提供状态接口
func (s *Server) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("run_id", s.runID).Logger()
	ctx = logger.WithContext(ctx)

	if s.api != nil {
		stop := s.serveAPI(ctx)
		defer stop()
	}

	logger.Info().Int("count", s.cfg.Count).Int("rounds", s.cfg.Rounds).Msg("Starting benchmark")
	report, err := s.bench.Run(ctx, s.cfg.Count, s.cfg.Rounds)
	s.tracker.Finish(report, err)
	if err != nil {
		return fmt.Errorf("run benchmark: %w", err)
	}

	if _, err := report.WriteTo(s.out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().Msg("Benchmark finished")
	return nil
}

// serveAPI 使用 grace.Shepherd 在后台托管状态接口，返回的函数用于停止
func (s *Server) serveAPI(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	shepherd := grace.NewShepherd(
		[]grace.Grace{s.api},
		grace.WithTimeout(shutdownTimeout),
		grace.WithLogger(&zerologLogger{logger: zerolog.Ctx(ctx)}),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shepherd.Start(ctx)
	}()

	return func() {
		cancel()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := s.api.Shutdown(shutdownCtx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to shut down status API")
		}
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}
}

// Close 关闭存储连接
func (s *Server) Close() error {
	return s.client.Close()
}

// Name 实现 grace.Grace 接口
func (s *Server) Name() string {
	return "xsbench"
}

// zerologLogger 实现 grace.Logger 接口
type zerologLogger struct {
	logger *zerolog.Logger
}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := l.logger.Info()
	// 如果有参数，使用 Msgf 格式化消息
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := l.logger.Error()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
