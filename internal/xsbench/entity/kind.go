// Package entity 定义 domain / device 的数据模型以及它们在存储中的路径和权限约定
package entity

import (
	"fmt"
)

// Kind 半虚拟化设备类型
type Kind int

const (
	KindUnknown Kind = iota // 未设置
	KindVIF                 // 网卡
	KindVBD                 // 块设备
	KindTAP                 // blktap 块设备
	KindPCI                 // PCI 直通
	KindVFS                 // 文件系统
	KindVFB                 // 虚拟帧缓冲
	KindVKBD                // 虚拟键盘
)

var kindNames = [...]string{
	KindVIF:  "vif",
	KindVBD:  "vbd",
	KindTAP:  "tap",
	KindPCI:  "pci",
	KindVFS:  "vfs",
	KindVFB:  "vfb",
	KindVKBD: "vkbd",
}

// Kinds 返回所有设备类型
func Kinds() []Kind {
	return []Kind{KindVIF, KindVBD, KindTAP, KindPCI, KindVFS, KindVFB, KindVKBD}
}

// String 返回存储中使用的名字
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	return k > KindUnknown && int(k) < len(kindNames)
}

// ParseKind 解析存储中的设备类型名，未知名字返回 false
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if kindNames[k] == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// MarshalText 实现 encoding.TextMarshaler，配置文件和 JSON 中使用名字
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown device kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown device kind %q", string(b))
	}
	*k = parsed
	return nil
}
