package api

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/ginx"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

// DomainServiceInterface 定义 domain 服务的接口
type DomainServiceInterface interface {
	Exists(ctx context.Context, domid int) (bool, error)
	Name(ctx context.Context, domid int) (string, error)
}

// DeviceServiceInterface 定义 device 服务的接口
type DeviceServiceInterface interface {
	ListFrontends(ctx context.Context, domid int) ([]entity.Device, error)
}

// Domain 查看运行中 domain 的 API
type Domain struct {
	domains DomainServiceInterface
	devices DeviceServiceInterface
}

// NewDomain 创建 domain API
func NewDomain(domains DomainServiceInterface, devices DeviceServiceInterface) *Domain {
	return &Domain{
		domains: domains,
		devices: devices,
	}
}

// RegisterRoutes 注册路由
func (a *Domain) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/domains/:domid", ginx.Adapt5(a.DescribeDomain))
}

// DescribeDomainRequest 查看 domain 请求
type DescribeDomainRequest struct {
	DomainID int `uri:"domid" binding:"min=0"`
}

// DescribeDomainResponse 查看 domain 响应
type DescribeDomainResponse struct {
	DomainID int             `json:"domid"`
	Name     string          `json:"name"`
	Devices  []entity.Device `json:"devices"`
}

// DescribeDomain 返回 domain 名称和当前挂载的设备
func (a *Domain) DescribeDomain(c *gin.Context, req *DescribeDomainRequest) (*DescribeDomainResponse, error) {
	ctx := c.Request.Context()

	ok, err := a.domains.Exists(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("domain %d: %w", req.DomainID, xenstore.ErrNotFound)
	}

	name, err := a.domains.Name(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	devices, err := a.devices.ListFrontends(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []entity.Device{}
	}

	return &DescribeDomainResponse{
		DomainID: req.DomainID,
		Name:     name,
		Devices:  devices,
	}, nil
}
