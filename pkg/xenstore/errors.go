// Package xenstore 提供 xenstore 存储客户端
//
// 包含三种实现：
//   - SocketClient: 通过 unix socket 使用 xenstore 线协议与 xenstored 通信
//   - MemoryStore: 进程内的层级事务存储，语义与 xenstored 一致，用于测试和 dry-run
//   - MockClient: 基于 testify/mock 的 mock，用于错误注入
package xenstore

import (
	"errors"
	"fmt"
)

// Error xenstore 错误
// Code 与 xenstored 返回的 errno 名称一致（ENOENT、EAGAIN 等）
type Error struct {
	Code     string `json:"code"`
	Op       string `json:"op,omitempty"`
	Path     string `json:"path,omitempty"`
	RawError error  `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	str := "xenstore"
	if e.Op != "" {
		str += " " + e.Op
	}
	if e.Path != "" {
		str += " " + e.Path
	}
	str += ": " + e.Code
	if e.RawError != nil {
		str += fmt.Sprintf(" (%v)", e.RawError)
	}
	return str
}

// Is 按错误码判断，errors.Is(err, ErrNotFound) 对任意路径的 ENOENT 都成立
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if e == nil || t == nil {
		return false
	}

	return e.Code == t.Code
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.RawError
}

var _ interface {
	Error() string
	Is(target error) bool
	Unwrap() error
} = (*Error)(nil)

// 预定义错误，只用于 errors.Is 比较
var (
	ErrNotFound   = NewError("ENOENT")
	ErrConflict   = NewError("EAGAIN")
	ErrPermission = NewError("EACCES")
	ErrInvalid    = NewError("EINVAL")
	ErrExists     = NewError("EEXIST")
	ErrTooBig     = NewError("E2BIG")
	ErrQuota      = NewError("EQUOTA")
	ErrIO         = NewError("EIO")
)

// NewError 创建指定错误码的错误
func NewError(code string) *Error {
	return &Error{Code: code}
}

// wrapError 基于预定义错误补充操作和路径
func wrapError(base *Error, op, path string, raw error) *Error {
	return &Error{
		Code:     base.Code,
		Op:       op,
		Path:     path,
		RawError: raw,
	}
}

// IsNotFound 判断是否为节点不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict 判断是否为事务冲突
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IgnoreNotFound 把 ENOENT 视为成功，其他错误原样返回
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
