package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrefix 基准测试使用的子树，避免碰到真实部署的节点
const DefaultPrefix = "/bench"

// Path 由段组成的存储路径
// 所有路径都通过 Child / Int 拼接，不手写格式化字符串
type Path struct {
	segs []string
}

// Root 根路径 "/"
func Root() Path {
	return Path{}
}

// ParsePath 解析绝对路径，拒绝空段和相对路径
func ParsePath(s string) (Path, error) {
	if s == "/" {
		return Root(), nil
	}
	if !strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return Path{}, fmt.Errorf("invalid path %q", s)
	}
	segs := strings.Split(s[1:], "/")
	for _, seg := range segs {
		if seg == "" {
			return Path{}, fmt.Errorf("invalid path %q", s)
		}
	}
	return Path{segs: segs}, nil
}

// Child 追加若干段，返回新路径
func (p Path) Child(names ...string) Path {
	segs := make([]string, 0, len(p.segs)+len(names))
	segs = append(segs, p.segs...)
	segs = append(segs, names...)
	return Path{segs: segs}
}

// Int 追加一个数字段
func (p Path) Int(n int) Path {
	return p.Child(strconv.Itoa(n))
}

// Parent 父路径，根的父路径仍是根
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: p.segs[:len(p.segs)-1]}
}

// Base 最后一段
func (p Path) Base() string {
	if len(p.segs) == 0 {
		return "/"
	}
	return p.segs[len(p.segs)-1]
}

// IsRoot 是否为根
func (p Path) IsRoot() bool {
	return len(p.segs) == 0
}

func (p Path) String() string {
	return "/" + strings.Join(p.segs, "/")
}

// Layout 把 domain / device 标识映射到前缀下的存储路径
type Layout struct {
	Prefix Path
}

// NewLayout 基于前缀创建 Layout，前缀 "/" 表示直接使用真实路径
func NewLayout(prefix string) (Layout, error) {
	p, err := ParsePath(prefix)
	if err != nil {
		return Layout{}, fmt.Errorf("prefix: %w", err)
	}
	return Layout{Prefix: p}, nil
}

// DefaultLayout 使用 DefaultPrefix
func DefaultLayout() Layout {
	return Layout{Prefix: Root().Child(strings.TrimPrefix(DefaultPrefix, "/"))}
}

// DomainPath <prefix>/local/domain/<domid>
func (l Layout) DomainPath(domid int) Path {
	return l.Prefix.Child("local", "domain").Int(domid)
}

// BackendRoot <domain>/backend
func (l Layout) BackendRoot(domid int) Path {
	return l.DomainPath(domid).Child("backend")
}

// FrontendPath <fe-domain>/device/<kind>/<devid>
func (l Layout) FrontendPath(dev Device) Path {
	fe := dev.Frontend
	return l.DomainPath(fe.DomainID).Child("device", fe.Kind.String()).Int(fe.DeviceID)
}

// BackendLink 后端端点在前端 domain feDomID 视角下的路径
// <be-domain>/backend/<kind>/<fe-domid>/<devid>
func (l Layout) BackendLink(be Endpoint, feDomID int) Path {
	return l.BackendRoot(be.DomainID).Child(be.Kind.String()).Int(feDomID).Int(be.DeviceID)
}

// BackendPath 设备的后端路径
func (l Layout) BackendPath(dev Device) Path {
	return l.BackendLink(dev.Backend, dev.Frontend.DomainID)
}

// BackendErrorPath <be-domain>/error/backend/<kind>/<fe-domid>
func (l Layout) BackendErrorPath(dev Device) Path {
	return l.DomainPath(dev.Backend.DomainID).Child("error", "backend", dev.Kind().String()).Int(dev.Frontend.DomainID)
}

// FrontendErrorPath <fe-domain>/error/device/<kind>/<devid>/error
func (l Layout) FrontendErrorPath(dev Device) Path {
	fe := dev.Frontend
	return l.DomainPath(fe.DomainID).Child("error", "device", fe.Kind.String()).Int(fe.DeviceID).Child("error")
}

// DomainPrivateRoot <prefix>/xapi/<domid>/private
func (l Layout) DomainPrivateRoot(domid int) Path {
	return l.Prefix.Child("xapi").Int(domid).Child("private")
}

// PrivatePath <prefix>/xapi/<fe-domid>/private/<kind>/<devid>
func (l Layout) PrivatePath(dev Device) Path {
	fe := dev.Frontend
	return l.DomainPrivateRoot(fe.DomainID).Child(fe.Kind.String()).Int(fe.DeviceID)
}

// HotplugPath <prefix>/xapi/<fe-domid>/hotplug/<kind>/<devid>
// destroy 不删除该子树
func (l Layout) HotplugPath(dev Device) Path {
	fe := dev.Frontend
	return l.Prefix.Child("xapi").Int(fe.DomainID).Child("hotplug", fe.Kind.String()).Int(fe.DeviceID)
}

// VMPath <prefix>/vm/<uuid>
func (l Layout) VMPath(uuid string) Path {
	return l.Prefix.Child("vm", uuid)
}

// VSSPath <prefix>/vss/<uuid>
func (l Layout) VSSPath(uuid string) Path {
	return l.Prefix.Child("vss", uuid)
}

// ParseBackendLink 解析前端 backend 属性中的后端路径
// 去掉前缀后必须正好是 /local/domain/<domid>/backend/<kind>/<fe-domid>/<devid>，
// 其他任何形式都返回 false
func (l Layout) ParseBackendLink(s string) (Endpoint, bool) {
	if !l.Prefix.IsRoot() {
		prefix := l.Prefix.String()
		if !strings.HasPrefix(s, prefix+"/") {
			return Endpoint{}, false
		}
		s = s[len(prefix):]
	}

	segs := strings.Split(s, "/")
	if len(segs) != 8 || segs[0] != "" || segs[1] != "local" || segs[2] != "domain" || segs[4] != "backend" {
		return Endpoint{}, false
	}

	domid, ok := ParseID(segs[3])
	if !ok {
		return Endpoint{}, false
	}
	kind, ok := ParseKind(segs[5])
	if !ok {
		return Endpoint{}, false
	}
	if _, ok := ParseID(segs[6]); !ok {
		return Endpoint{}, false
	}
	devid, ok := ParseID(segs[7])
	if !ok {
		return Endpoint{}, false
	}
	return Endpoint{DomainID: domid, Kind: kind, DeviceID: devid}, true
}

// ParseID 解析目录项中的 domain / device 号，只接受规范的非负十进制数
func ParseID(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}
