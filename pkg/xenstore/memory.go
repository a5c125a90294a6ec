package xenstore

import (
	"context"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

// node 内存存储中的一个节点，子节点按名称有序保存
type node struct {
	value    string
	acl      ACL
	children *treemap.Map
}

func newNode(acl ACL) *node {
	return &node{
		acl:      acl.clone(),
		children: treemap.NewWithStringComparator(),
	}
}

func (n *node) child(name string) *node {
	v, ok := n.children.Get(name)
	if !ok {
		return nil
	}
	return v.(*node)
}

// MemoryStore 进程内的 xenstore 实现
// 新节点继承父节点权限；事务持有写锁执行，失败时按 undo 日志回滚，
// 因此事务之间不会冲突。权限只记录不校验（压测以 dom0 身份运行）
type MemoryStore struct {
	mu   sync.RWMutex
	root *node
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: newNode(ACL{Owner: 0, Other: AccessNone}),
	}
}

// splitPath 校验并拆分绝对路径
func splitPath(op, path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, wrapError(ErrInvalid, op, path, nil)
	}
	if path == "/" {
		return nil, nil
	}
	if strings.HasSuffix(path, "/") {
		return nil, wrapError(ErrInvalid, op, path, nil)
	}
	segs := strings.Split(path[1:], "/")
	for _, seg := range segs {
		if seg == "" {
			return nil, wrapError(ErrInvalid, op, path, nil)
		}
	}
	return segs, nil
}

// memOps 在树上执行操作，调用方负责加锁
// undo 非 nil 时记录每次修改的逆操作
type memOps struct {
	s    *MemoryStore
	undo *[]func()
}

func (o memOps) record(fn func()) {
	if o.undo != nil {
		*o.undo = append(*o.undo, fn)
	}
}

func (o memOps) lookup(segs []string) *node {
	n := o.s.root
	for _, seg := range segs {
		n = n.child(seg)
		if n == nil {
			return nil
		}
	}
	return n
}

// ensure 返回路径对应的节点，缺失的节点逐级创建
func (o memOps) ensure(segs []string) *node {
	n := o.s.root
	for _, seg := range segs {
		next := n.child(seg)
		if next == nil {
			parent, name := n, seg
			next = newNode(parent.acl)
			parent.children.Put(name, next)
			o.record(func() { parent.children.Remove(name) })
		}
		n = next
	}
	return n
}

func (o memOps) Read(_ context.Context, path string) (string, error) {
	segs, err := splitPath("read", path)
	if err != nil {
		return "", err
	}
	n := o.lookup(segs)
	if n == nil {
		return "", wrapError(ErrNotFound, "read", path, nil)
	}
	return n.value, nil
}

func (o memOps) Write(_ context.Context, path, value string) error {
	segs, err := splitPath("write", path)
	if err != nil {
		return err
	}
	if len(value) > maxPayload {
		return wrapError(ErrTooBig, "write", path, nil)
	}
	n := o.ensure(segs)
	old := n.value
	n.value = value
	o.record(func() { n.value = old })
	return nil
}

func (o memOps) Mkdir(_ context.Context, path string) error {
	segs, err := splitPath("mkdir", path)
	if err != nil {
		return err
	}
	o.ensure(segs)
	return nil
}

func (o memOps) Directory(_ context.Context, path string) ([]string, error) {
	segs, err := splitPath("directory", path)
	if err != nil {
		return nil, err
	}
	n := o.lookup(segs)
	if n == nil {
		return nil, wrapError(ErrNotFound, "directory", path, nil)
	}
	keys := n.children.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.(string)
	}
	return names, nil
}

func (o memOps) Remove(_ context.Context, path string) error {
	segs, err := splitPath("rm", path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return wrapError(ErrInvalid, "rm", path, nil)
	}
	parent := o.lookup(segs[:len(segs)-1])
	if parent == nil {
		return nil
	}
	name := segs[len(segs)-1]
	child := parent.child(name)
	if child == nil {
		return nil
	}
	parent.children.Remove(name)
	o.record(func() { parent.children.Put(name, child) })
	return nil
}

func (o memOps) SetPermissions(_ context.Context, path string, acl ACL) error {
	segs, err := splitPath("set_perms", path)
	if err != nil {
		return err
	}
	n := o.lookup(segs)
	if n == nil {
		return wrapError(ErrNotFound, "set_perms", path, nil)
	}
	old := n.acl
	n.acl = acl.clone()
	o.record(func() { n.acl = old })
	return nil
}

func (o memOps) GetPermissions(_ context.Context, path string) (ACL, error) {
	segs, err := splitPath("get_perms", path)
	if err != nil {
		return ACL{}, err
	}
	n := o.lookup(segs)
	if n == nil {
		return ACL{}, wrapError(ErrNotFound, "get_perms", path, nil)
	}
	return n.acl.clone(), nil
}

// Read 实现 Ops.Read
func (s *MemoryStore) Read(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memOps{s: s}.Read(ctx, path)
}

// Write 实现 Ops.Write
func (s *MemoryStore) Write(ctx context.Context, path, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memOps{s: s}.Write(ctx, path, value)
}

// Mkdir 实现 Ops.Mkdir
func (s *MemoryStore) Mkdir(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memOps{s: s}.Mkdir(ctx, path)
}

// Directory 实现 Ops.Directory
func (s *MemoryStore) Directory(ctx context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memOps{s: s}.Directory(ctx, path)
}

// Remove 实现 Ops.Remove
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memOps{s: s}.Remove(ctx, path)
}

// SetPermissions 实现 Ops.SetPermissions
func (s *MemoryStore) SetPermissions(ctx context.Context, path string, acl ACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memOps{s: s}.SetPermissions(ctx, path, acl)
}

// GetPermissions 实现 Ops.GetPermissions
func (s *MemoryStore) GetPermissions(ctx context.Context, path string) (ACL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memOps{s: s}.GetPermissions(ctx, path)
}

// Transaction 实现 Client.Transaction
// fn 在写锁内执行，只能使用传入的 tx，直接调用 MemoryStore 的方法会死锁
func (s *MemoryStore) Transaction(ctx context.Context, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	if err := fn(ctx, memOps{s: s, undo: &undo}); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

// Close 实现 Client.Close
func (s *MemoryStore) Close() error {
	return nil
}

// Snapshot 返回 路径 -> 值 的完整快照，不含根节点
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	var walk func(prefix string, n *node)
	walk = func(prefix string, n *node) {
		it := n.children.Iterator()
		for it.Next() {
			p := prefix + "/" + it.Key().(string)
			child := it.Value().(*node)
			out[p] = child.value
			walk(p, child)
		}
	}
	walk("", s.root)
	return out
}

var _ Client = (*MemoryStore)(nil)
