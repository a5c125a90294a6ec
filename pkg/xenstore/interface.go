package xenstore

import "context"

// Ops 定义 xenstore 的基本数据操作
// 事务内外使用同一组操作
type Ops interface {
	// Read 读取节点值，节点不存在返回 ErrNotFound
	Read(ctx context.Context, path string) (string, error)

	// Write 写入节点值，自动创建缺失的父节点
	Write(ctx context.Context, path, value string) error

	// Mkdir 创建节点，已存在时不报错
	Mkdir(ctx context.Context, path string) error

	// Directory 列出子节点名称（有序），节点不存在返回 ErrNotFound
	Directory(ctx context.Context, path string) ([]string, error)

	// Remove 递归删除节点，节点不存在不报错
	Remove(ctx context.Context, path string) error

	// SetPermissions 设置节点权限
	SetPermissions(ctx context.Context, path string, acl ACL) error

	// GetPermissions 获取节点权限
	GetPermissions(ctx context.Context, path string) (ACL, error)
}

// TxFunc 事务体，可能因冲突被多次执行，必须只通过 tx 访问存储
type TxFunc func(ctx context.Context, tx Ops) error

// Client 定义 xenstore 客户端接口
// 用于抽象存储操作，便于测试和 mock
type Client interface {
	Ops

	// Transaction 原子地执行 fn 中的全部操作
	// 提交冲突（EAGAIN）时重新执行 fn；fn 返回错误时放弃事务并原样返回该错误
	Transaction(ctx context.Context, fn TxFunc) error

	// Close 关闭连接
	Close() error
}
