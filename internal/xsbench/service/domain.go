package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

// ShutdownReason 写入 control/shutdown 的关机原因
type ShutdownReason string

const (
	ShutdownPoweroff ShutdownReason = "poweroff"
	ShutdownReboot   ShutdownReason = "reboot"
	ShutdownSuspend  ShutdownReason = "suspend"
	ShutdownCrash    ShutdownReason = "crash"
	ShutdownHalt     ShutdownReason = "halt"
)

var (
	// 对 domain 只读的子目录
	readOnlyDirs = []string{"cpu", "memory"}
	// domain 可读写的子目录
	readWriteDirs = []string{"device", "error", "drivers", "control", "attr", "data", "messages", "vm-data"}
)

// DomainService 管理 domain 子树
type DomainService struct {
	client  xenstore.Client
	layout  entity.Layout
	devices *DeviceService
	metrics *Metrics
}

// NewDomainService 创建 DomainService
func NewDomainService(client xenstore.Client, layout entity.Layout, devices *DeviceService, metrics *Metrics) *DomainService {
	return &DomainService{
		client:  client,
		layout:  layout,
		devices: devices,
		metrics: metrics,
	}
}

// Make 创建 domain
// 第一个事务建立目录结构和权限，第二个事务写入客户机可见的数据，
// 保证数据写入时权限已经就绪
func (s *DomainService) Make(ctx context.Context, domid int) error {
	start := time.Now()
	err := s.make(ctx, domid)
	s.metrics.observe("make", start, err)
	if err != nil {
		return fmt.Errorf("make domain %d: %w", domid, err)
	}

	zerolog.Ctx(ctx).Debug().Int("domid", domid).Msg("Domain created")
	return nil
}

func (s *DomainService) make(ctx context.Context, domid int) error {
	root := s.layout.DomainPath(domid)
	vmUUID := entity.VMUUID(domid)
	vm := s.layout.VMPath(vmUUID)
	vss := s.layout.VSSPath(vmUUID)

	// 清理上一次遗留的 domain
	if err := xenstore.IgnoreNotFound(s.client.Remove(ctx, root.String())); err != nil {
		return fmt.Errorf("purge stale domain: %w", err)
	}

	err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		if err := mkdirWithPerms(ctx, tx, root, entity.ReadOnlyTo(domid)); err != nil {
			return err
		}

		// 同一个 VM 的多个 domain 共享 /vm/<uuid>
		_, err := tx.Read(ctx, vm.Child("uuid").String())
		switch {
		case xenstore.IsNotFound(err):
			if err := mkdirWithPerms(ctx, tx, vm, entity.ReadOnlyTo(domid)); err != nil {
				return err
			}
			if err := writeAll(ctx, tx, []kv{
				{vm.Child("uuid"), vmUUID},
				{vm.Child("name"), entity.VMName(domid)},
			}); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("read %s: %w", vm.Child("uuid"), err)
		}

		if err := mkdirWithPerms(ctx, tx, vss, entity.OwnedBy(0)); err != nil {
			return err
		}

		if err := writeAll(ctx, tx, []kv{
			{vm.Child("domains").Int(domid), root.String()},
			{root.Child("vm"), vm.String()},
			{root.Child("vss"), vss.String()},
			{root.Child("name"), entity.VMName(domid)},
			{root.Child("domid"), strconv.Itoa(domid)},
		}); err != nil {
			return err
		}

		for _, name := range readOnlyDirs {
			if err := mkdirWithPerms(ctx, tx, root.Child(name), entity.ReadOnlyTo(domid)); err != nil {
				return err
			}
		}
		for _, name := range readWriteDirs {
			if err := mkdirWithPerms(ctx, tx, root.Child(name), entity.OwnedBy(domid)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		return writeAll(ctx, tx, []kv{
			{root.Child("platform", "acpi"), "1"},
			{root.Child("platform", "apic"), "1"},
			{root.Child("platform", "pae"), "1"},
			{root.Child("platform", "nx"), "1"},
			{root.Child("platform", "viridian"), "0"},
			{root.Child("bios-strings", "bios-vendor"), "Xen"},
			{root.Child("bios-strings", "bios-version"), "4.1"},
			{root.Child("bios-strings", "system-manufacturer"), "Xen"},
			{root.Child("bios-strings", "system-product-name"), "HVM domU"},
			// 尚未完成配置
			{root.Child("action-request"), "poweroff"},
			{root.Child("control", "platform-feature-multiprocessor-suspend"), "1"},
			{root.Child("unique-domain-id"), uuid.NewString()},
		})
	})
}

// Shutdown 请求 domain 关机，domain 已不存在时返回 false 且不写入任何数据
func (s *DomainService) Shutdown(ctx context.Context, domid int, reason ShutdownReason) (bool, error) {
	start := time.Now()
	root := s.layout.DomainPath(domid)

	var found bool
	err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		found = false
		if _, err := tx.Read(ctx, root.String()); err != nil {
			return xenstore.IgnoreNotFound(err)
		}
		found = true
		return tx.Write(ctx, root.Child("control", "shutdown").String(), string(reason))
	})
	s.metrics.observe("shutdown", start, err)
	if err != nil {
		return false, fmt.Errorf("shutdown domain %d: %w", domid, err)
	}

	zerolog.Ctx(ctx).Debug().Int("domid", domid).Str("reason", string(reason)).Bool("found", found).Msg("Shutdown requested")
	return found, nil
}

// Destroy 销毁 domain 及其所有设备，可重复调用
func (s *DomainService) Destroy(ctx context.Context, domid int) error {
	start := time.Now()
	err := s.destroy(ctx, domid)
	s.metrics.observe("destroy", start, err)
	if err != nil {
		return fmt.Errorf("destroy domain %d: %w", domid, err)
	}

	zerolog.Ctx(ctx).Debug().Int("domid", domid).Msg("Domain destroyed")
	return nil
}

func (s *DomainService) destroy(ctx context.Context, domid int) error {
	root := s.layout.DomainPath(domid)

	devices, err := s.devices.ListFrontends(ctx, domid)
	if err != nil {
		return err
	}
	backendDomains := []int{0}
	for _, dev := range devices {
		if err := s.devices.HardShutdown(ctx, dev); err != nil {
			return err
		}
		backendDomains = append(backendDomains, dev.Backend.DomainID)
	}

	if err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
		return s.unregisterVM(ctx, tx, domid)
	}); err != nil {
		return fmt.Errorf("unregister from vm record: %w", err)
	}

	if err := xenstore.IgnoreNotFound(s.client.Remove(ctx, root.String())); err != nil {
		return fmt.Errorf("remove %s: %w", root, err)
	}

	// dom0 以及各设备的后端 domain 中为该 domain 提供的后端
	slices.Sort(backendDomains)
	for _, be := range slices.Compact(backendDomains) {
		if err := s.client.Transaction(ctx, func(ctx context.Context, tx xenstore.Ops) error {
			return s.removeBackends(ctx, tx, be, domid)
		}); err != nil {
			return fmt.Errorf("remove backends of domain %d in domain %d: %w", domid, be, err)
		}
	}

	// hotplug 子树保留
	private := s.layout.DomainPrivateRoot(domid)
	if err := xenstore.IgnoreNotFound(s.client.Remove(ctx, private.String())); err != nil {
		return fmt.Errorf("remove %s: %w", private, err)
	}
	return nil
}

// removeBackends 删除后端 domain 中 backend/<kind>/<domid>，随后删除空的 backend/<kind> 和 backend 目录，
// 后端 domain 根节点没有 name 且已经为空时说明它只是添加后端时自动创建的父节点，一并删除
func (s *DomainService) removeBackends(ctx context.Context, tx xenstore.Ops, backend, domid int) error {
	backends := s.layout.BackendRoot(backend)
	kinds, err := tx.Directory(ctx, backends.String())
	if err != nil {
		return xenstore.IgnoreNotFound(err)
	}

	busy := false
	for _, kind := range kinds {
		p := backends.Child(kind)
		if err := tx.Remove(ctx, p.Int(domid).String()); err != nil {
			return err
		}
		entries, err := tx.Directory(ctx, p.String())
		if err != nil && !xenstore.IsNotFound(err) {
			return err
		}
		if len(entries) > 0 {
			busy = true
			continue
		}
		if err := tx.Remove(ctx, p.String()); err != nil {
			return err
		}
	}
	if busy {
		return nil
	}
	if err := tx.Remove(ctx, backends.String()); err != nil {
		return err
	}

	root := s.layout.DomainPath(backend)
	_, err = tx.Read(ctx, root.Child("name").String())
	switch {
	case err == nil:
		return nil
	case !xenstore.IsNotFound(err):
		return err
	}
	children, err := tx.Directory(ctx, root.String())
	if err != nil {
		return xenstore.IgnoreNotFound(err)
	}
	if len(children) > 0 {
		return nil
	}
	return tx.Remove(ctx, root.String())
}

// unregisterVM 从 /vm/<uuid>/domains 中删除 domain，最后一个 domain 离开时删除整个 VM 记录
func (s *DomainService) unregisterVM(ctx context.Context, tx xenstore.Ops, domid int) error {
	root := s.layout.DomainPath(domid)

	link, err := tx.Read(ctx, root.Child("vm").String())
	if err != nil {
		return xenstore.IgnoreNotFound(err)
	}
	vm, err := entity.ParsePath(link)
	if err == nil && vm.IsRoot() {
		err = fmt.Errorf("vm link points at the store root")
	}
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int("domid", domid).Msg("Domain has a malformed vm link")
		return nil
	}

	var vss entity.Path
	link, err = tx.Read(ctx, root.Child("vss").String())
	switch {
	case err == nil:
		if vss, err = entity.ParsePath(link); err != nil {
			return fmt.Errorf("vss link: %w", err)
		}
	case !xenstore.IsNotFound(err):
		return err
	}

	domains := vm.Child("domains")
	if err := tx.Remove(ctx, domains.Int(domid).String()); err != nil {
		return err
	}

	remaining, err := tx.Directory(ctx, domains.String())
	if err != nil && !xenstore.IsNotFound(err) {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}

	if err := tx.Remove(ctx, vm.String()); err != nil {
		return err
	}
	if !vss.IsRoot() {
		return tx.Remove(ctx, vss.String())
	}
	return nil
}

// Exists domain 根节点是否存在
func (s *DomainService) Exists(ctx context.Context, domid int) (bool, error) {
	_, err := s.client.Read(ctx, s.layout.DomainPath(domid).String())
	if err != nil {
		if xenstore.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Name 读取 domain 的 name
func (s *DomainService) Name(ctx context.Context, domid int) (string, error) {
	p := s.layout.DomainPath(domid).Child("name")
	name, err := s.client.Read(ctx, p.String())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return name, nil
}
