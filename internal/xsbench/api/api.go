package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type API struct {
	engine *gin.Engine
	server *http.Server

	status *Status
	domain *Domain
}

// New 创建状态接口，gatherer 为 nil 时不注册 /metrics
func New(addr string, tracker StatusProvider, domains DomainServiceInterface, devices DeviceServiceInterface, gatherer prometheus.Gatherer) *API {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	api := &API{
		engine: engine,
		status: NewStatus(tracker),
		domain: NewDomain(domains, devices),
	}

	group := engine.Group("/api")
	api.status.RegisterRoutes(group)
	api.domain.RegisterRoutes(group)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api.server = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

// Name 实现 grace.Grace 接口
func (a *API) Name() string {
	return "Status API"
}

func (a *API) Run(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Str("addr", a.server.Addr).Msg("Status API listening")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Handler 返回路由，便于测试
func (a *API) Handler() http.Handler {
	return a.engine
}

// requestLogger 以 debug 级别记录请求，标准输出留给测试结果
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zerolog.Ctx(c.Request.Context()).Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
