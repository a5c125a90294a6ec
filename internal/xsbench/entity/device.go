package entity

import (
	"fmt"
	"strconv"
)

// DeviceProperties 写入前端和后端的类型相关属性
type DeviceProperties struct {
	Frontend map[string]string `yaml:"frontend,omitempty" json:"frontend,omitempty"` // 前端属性
	Backend  map[string]string `yaml:"backend,omitempty" json:"backend,omitempty"`   // 后端属性
}

// DeviceTemplate 每个 VM 启动时挂载的设备
type DeviceTemplate struct {
	Kind            Kind             `yaml:"kind" json:"kind"`                                 // 设备类型
	DeviceID        int              `yaml:"devid" json:"devid"`                               // 设备号
	BackendDomainID int              `yaml:"backend_domid" json:"backend_domid"`               // 后端 domain，默认 dom0
	Properties      DeviceProperties `yaml:"properties,omitempty" json:"properties,omitempty"` // 额外属性，覆盖默认值
}

// DefaultDeviceTemplates 两块磁盘加一块网卡，后端都在 dom0
func DefaultDeviceTemplates() []DeviceTemplate {
	return []DeviceTemplate{
		{Kind: KindVBD, DeviceID: 51712},
		{Kind: KindVBD, DeviceID: 51728},
		{Kind: KindVIF, DeviceID: 0},
	}
}

// Device 为 domid 实例化设备
func (t DeviceTemplate) Device(domid int) (Device, error) {
	return NewDevice(
		Endpoint{DomainID: domid, Kind: t.Kind, DeviceID: t.DeviceID},
		Endpoint{DomainID: t.BackendDomainID, Kind: t.Kind, DeviceID: t.DeviceID},
	)
}

// Props 默认属性叠加模板中的属性
func (t DeviceTemplate) Props(dev Device) DeviceProperties {
	props := DefaultProperties(dev)
	for k, v := range t.Properties.Frontend {
		props.Frontend[k] = v
	}
	for k, v := range t.Properties.Backend {
		props.Backend[k] = v
	}
	return props
}

// DefaultProperties 按设备类型生成工具栈通常写入的属性
func DefaultProperties(dev Device) DeviceProperties {
	props := DeviceProperties{
		Frontend: map[string]string{},
		Backend:  map[string]string{},
	}

	devid := strconv.Itoa(dev.Frontend.DeviceID)
	switch dev.Kind() {
	case KindVBD, KindTAP:
		props.Frontend["virtual-device"] = devid
		props.Frontend["device-type"] = "disk"
		props.Backend["type"] = "phy"
		props.Backend["mode"] = "w"
		props.Backend["removable"] = "0"
		props.Backend["params"] = ""
	case KindVIF:
		mac := MAC(dev.Frontend.DomainID, dev.Frontend.DeviceID)
		props.Frontend["handle"] = devid
		props.Frontend["mac"] = mac
		props.Backend["handle"] = devid
		props.Backend["mac"] = mac
		props.Backend["script"] = "/etc/xen/scripts/vif"
	}
	return props
}

// MAC Xen OUI 下按 domid 和设备号生成的地址
func MAC(domid, devid int) string {
	return fmt.Sprintf("00:16:3e:%02x:%02x:%02x", (domid>>8)&0xff, domid&0xff, devid&0xff)
}
