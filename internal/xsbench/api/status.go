package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/ginx"
)

// StatusProvider 提供运行状态
type StatusProvider interface {
	Status() *entity.Status
}

// Status 运行状态 API
type Status struct {
	tracker StatusProvider
}

// NewStatus 创建运行状态 API
func NewStatus(tracker StatusProvider) *Status {
	return &Status{tracker: tracker}
}

// RegisterRoutes 注册路由
func (a *Status) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", ginx.Adapt2(a.DescribeStatus))
}

// DescribeStatus 返回当前阶段、进度和已完成的结果
func (a *Status) DescribeStatus(c *gin.Context) *entity.Status {
	return a.tracker.Status()
}
