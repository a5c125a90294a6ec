// Package service 实现 device / domain 生命周期以及基准测试负载
package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

// 设备状态，对应 XenbusState
const (
	stateInitialising = "1"
	onlineOn          = "1"
	onlineOff         = "0"
)

// DeviceService 管理一对前端/后端设备在存储中的子树
type DeviceService struct {
	client  xenstore.Client
	layout  entity.Layout
	metrics *Metrics
}

// NewDeviceService 创建 DeviceService，metrics 可以为 nil
func NewDeviceService(client xenstore.Client, layout entity.Layout, metrics *Metrics) *DeviceService {
	return &DeviceService{
		client:  client,
		layout:  layout,
		metrics: metrics,
	}
}

// ListFrontends 列出 domain 的 device 子树下所有能解析出后端的设备
// 无法读取或无法解析 backend 属性的前端直接跳过
func (s *DeviceService) ListFrontends(ctx context.Context, domid int) ([]entity.Device, error) {
	logger := zerolog.Ctx(ctx)
	root := s.layout.DomainPath(domid).Child("device")

	kinds, err := s.client.Directory(ctx, root.String())
	if err != nil {
		if xenstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list device kinds of domain %d: %w", domid, err)
	}

	var devices []entity.Device
	for _, name := range kinds {
		kind, ok := entity.ParseKind(name)
		if !ok {
			logger.Debug().Int("domid", domid).Str("kind", name).Msg("Skipping unknown device kind")
			continue
		}

		ids, err := s.client.Directory(ctx, root.Child(name).String())
		if err != nil {
			if xenstore.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("list %s devices of domain %d: %w", name, domid, err)
		}

		for _, id := range ids {
			devid, ok := entity.ParseID(id)
			if !ok {
				logger.Debug().Int("domid", domid).Str("kind", name).Str("devid", id).Msg("Skipping malformed device id")
				continue
			}

			frontend := entity.Endpoint{DomainID: domid, Kind: kind, DeviceID: devid}
			link, err := s.client.Read(ctx, root.Child(name, id, "backend").String())
			if err != nil {
				logger.Debug().Err(err).Stringer("frontend", frontend).Msg("Frontend has no readable backend link")
				continue
			}

			backend, ok := s.layout.ParseBackendLink(link)
			if !ok {
				logger.Debug().Stringer("frontend", frontend).Str("link", link).Msg("Frontend backend link does not parse")
				continue
			}

			dev, err := entity.NewDevice(frontend, backend)
			if err != nil {
				logger.Debug().Err(err).Stringer("frontend", frontend).Msg("Frontend links to a backend of another kind")
				continue
			}
			if s.layout.BackendPath(dev).String() != link {
				logger.Debug().Stringer("frontend", frontend).Str("link", link).Msg("Frontend links to a backend of another domain")
				continue
			}
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

// Add 在一个事务中挂载设备
// 先清理上一次遗留的前端和后端，再依次创建前端、后端、hotplug 子树，
// 每个子树创建后立即设置权限，最后写入交叉引用和类型相关属性
func (s *DeviceService) Add(ctx context.Context, dev entity.Device, props entity.DeviceProperties) error {
	start := time.Now()
	frontend := s.layout.FrontendPath(dev)
	backend := s.layout.BackendPath(dev)
	hotplug := s.layout.HotplugPath(dev)
	private := s.layout.PrivatePath(dev)

	err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		for _, stale := range []entity.Path{frontend, backend} {
			if err := xenstore.IgnoreNotFound(tx.Remove(ctx, stale.String())); err != nil {
				return fmt.Errorf("purge stale %s: %w", stale, err)
			}
		}

		dirs := []struct {
			path entity.Path
			acl  xenstore.ACL
		}{
			{frontend, entity.FrontendACL(dev)},
			{backend, entity.BackendACL(dev)},
			{hotplug, entity.HotplugACL(dev)},
		}
		for _, d := range dirs {
			if err := mkdirWithPerms(ctx, tx, d.path, d.acl); err != nil {
				return err
			}
		}

		beDomID := strconv.Itoa(dev.Backend.DomainID)
		feDomID := strconv.Itoa(dev.Frontend.DomainID)
		writes := []kv{
			{frontend.Child("backend"), backend.String()},
			{frontend.Child("backend-id"), beDomID},
			{frontend.Child("state"), stateInitialising},
			{backend.Child("frontend"), frontend.String()},
			{backend.Child("frontend-id"), feDomID},
			{backend.Child("online"), onlineOn},
			{backend.Child("state"), stateInitialising},
		}
		for _, k := range slices.Sorted(maps.Keys(props.Frontend)) {
			writes = append(writes, kv{frontend.Child(k), props.Frontend[k]})
		}
		for _, k := range slices.Sorted(maps.Keys(props.Backend)) {
			writes = append(writes, kv{backend.Child(k), props.Backend[k]})
		}
		writes = append(writes,
			kv{private.Child("backend-kind"), dev.Kind().String()},
			kv{private.Child("backend-id"), beDomID},
		)
		return writeAll(ctx, tx, writes)
	})
	s.metrics.observe("device_add", start, err)
	if err != nil {
		return fmt.Errorf("add device %s: %w", dev, err)
	}

	zerolog.Ctx(ctx).Debug().
		Int("domid", dev.Frontend.DomainID).
		Str("kind", dev.Kind().String()).
		Int("devid", dev.Frontend.DeviceID).
		Msg("Device added")
	return nil
}

// HardShutdownRequest 把后端 online 置 0 并删除前端，不等待后端响应
func (s *DeviceService) HardShutdownRequest(ctx context.Context, dev entity.Device) error {
	backend := s.layout.BackendPath(dev)
	frontend := s.layout.FrontendPath(dev)

	err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		if err := tx.Write(ctx, backend.Child("online").String(), onlineOff); err != nil {
			return err
		}
		return xenstore.IgnoreNotFound(tx.Remove(ctx, frontend.String()))
	})
	if err != nil {
		return fmt.Errorf("hard shutdown request %s: %w", dev, err)
	}
	return nil
}

// RemoveDeviceState 删除后端、后端错误节点以及前端错误节点的父目录，已不存在视为成功
func (s *DeviceService) RemoveDeviceState(ctx context.Context, dev entity.Device) error {
	paths := []entity.Path{
		s.layout.BackendPath(dev),
		s.layout.BackendErrorPath(dev),
		s.layout.FrontendErrorPath(dev).Parent(),
	}

	err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		for _, p := range paths {
			if err := xenstore.IgnoreNotFound(tx.Remove(ctx, p.String())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove device state %s: %w", dev, err)
	}
	return nil
}

// HardShutdown 强制卸载设备，设备只挂载了一半时同样会完成两步
func (s *DeviceService) HardShutdown(ctx context.Context, dev entity.Device) error {
	start := time.Now()
	err := s.HardShutdownRequest(ctx, dev)
	if err == nil {
		err = s.RemoveDeviceState(ctx, dev)
	}
	s.metrics.observe("device_hard_shutdown", start, err)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().
		Int("domid", dev.Frontend.DomainID).
		Str("kind", dev.Kind().String()).
		Int("devid", dev.Frontend.DeviceID).
		Msg("Device removed")
	return nil
}

type kv struct {
	path  entity.Path
	value string
}

func writeAll(ctx context.Context, ops xenstore.Ops, writes []kv) error {
	for _, w := range writes {
		if err := ops.Write(ctx, w.path.String(), w.value); err != nil {
			return fmt.Errorf("write %s: %w", w.path, err)
		}
	}
	return nil
}

// mkdirWithPerms 创建目录后立即设置权限
func mkdirWithPerms(ctx context.Context, ops xenstore.Ops, p entity.Path, acl xenstore.ACL) error {
	if err := ops.Mkdir(ctx, p.String()); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	if err := ops.SetPermissions(ctx, p.String(), acl); err != nil {
		return fmt.Errorf("set permissions on %s: %w", p, err)
	}
	return nil
}
