package entity

import (
	"errors"
	"fmt"
)

// ErrKindMismatch 前端和后端的设备类型不一致
var ErrKindMismatch = errors.New("frontend and backend kinds differ")

// Endpoint 设备连接的一端
type Endpoint struct {
	DomainID int  `json:"domid"` // 所在 domain
	Kind     Kind `json:"kind"`  // 设备类型
	DeviceID int  `json:"devid"` // 设备号
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%d@%d", e.Kind, e.DeviceID, e.DomainID)
}

// Device 一对前端/后端
// 只能通过 NewDevice 构造，保证两端类型一致
type Device struct {
	Frontend Endpoint `json:"frontend"` // 使用设备的 domain
	Backend  Endpoint `json:"backend"`  // 提供设备的 domain，通常是 dom0
}

// NewDevice 构造设备，两端类型不同时返回 ErrKindMismatch
func NewDevice(frontend, backend Endpoint) (Device, error) {
	if frontend.Kind != backend.Kind {
		return Device{}, fmt.Errorf("%w: frontend %s, backend %s", ErrKindMismatch, frontend.Kind, backend.Kind)
	}
	if !frontend.Kind.Valid() {
		return Device{}, fmt.Errorf("unknown device kind %d", int(frontend.Kind))
	}
	if frontend.DomainID < 0 || backend.DomainID < 0 || frontend.DeviceID < 0 || backend.DeviceID < 0 {
		return Device{}, fmt.Errorf("negative id in device %s -> %s", frontend, backend)
	}
	return Device{Frontend: frontend, Backend: backend}, nil
}

// Kind 设备类型
func (d Device) Kind() Kind {
	return d.Frontend.Kind
}

func (d Device) String() string {
	return fmt.Sprintf("%s -> %s", d.Frontend, d.Backend)
}
