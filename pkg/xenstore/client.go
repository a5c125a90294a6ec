package xenstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultSocketPath xenstored 默认的 unix socket 路径
const DefaultSocketPath = "/var/run/xenstored/socket"

// ErrClosed 连接已关闭
var ErrClosed = errors.New("xenstore: connection closed")

// SocketClient 通过单个连接与 xenstored 通信
// 所有 goroutine 共享同一连接：写请求串行化，由一个读 goroutine 按 req_id 分发响应，
// 因此可以同时有任意多个请求在途
type SocketClient struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan *message
	err     error

	nextReqID atomic.Uint32
	closed    chan struct{}

	maxRetries int
}

// Option SocketClient 配置项
type Option func(*SocketClient)

// WithMaxTransactionRetries 设置事务冲突的最大重试次数，0 表示不限制
func WithMaxTransactionRetries(n int) Option {
	return func(c *SocketClient) {
		c.maxRetries = n
	}
}

// Dial 连接到 xenstored
func Dial(ctx context.Context, path string, opts ...Option) (*SocketClient, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to xenstored %s: %w", path, err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("Connected to xenstored")
	return NewSocketClient(conn, opts...), nil
}

// NewSocketClient 基于已建立的连接创建客户端
func NewSocketClient(conn net.Conn, opts ...Option) *SocketClient {
	c := &SocketClient{
		conn:    conn,
		pending: make(map[uint32]chan *message),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// readLoop 读取响应并分发给等待中的请求
func (c *SocketClient) readLoop() {
	for {
		msg, err := readMessage(c.conn)
		if err != nil {
			c.fail(err)
			return
		}

		// 没有注册 watch，忽略异步事件
		if msg.Type == typeWatchEvent {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ReqID]
		delete(c.pending, msg.ReqID)
		c.mu.Unlock()

		if ok {
			ch <- msg
		}
	}
}

// fail 记录连接错误并唤醒所有等待者
func (c *SocketClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}
	c.err = err
	close(c.closed)
}

// Close 关闭连接
func (c *SocketClient) Close() error {
	c.fail(ErrClosed)
	return c.conn.Close()
}

// request 发送一条请求并等待对应的响应
func (c *SocketClient) request(ctx context.Context, txID uint32, t msgType, path string, payload []byte) (*message, error) {
	if len(payload) > maxPayload {
		return nil, wrapError(ErrTooBig, t.String(), path, nil)
	}

	reqID := c.nextReqID.Add(1)
	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	req := &message{Type: t, ReqID: reqID, TxID: txID, Payload: payload}

	c.writeMu.Lock()
	_, err := c.conn.Write(req.encode())
	c.writeMu.Unlock()
	if err != nil {
		c.forget(reqID)
		return nil, fmt.Errorf("send %s: %w", t, err)
	}

	select {
	case reply := <-ch:
		return checkReply(reply, t, path)
	case <-ctx.Done():
		c.forget(reqID)
		return nil, ctx.Err()
	case <-c.closed:
		// 响应可能与关闭同时到达
		select {
		case reply := <-ch:
			return checkReply(reply, t, path)
		default:
		}
		return nil, c.err
	}
}

// checkReply 把 XS_ERROR 响应转换为 *Error，并检查响应类型与请求一致
func checkReply(reply *message, t msgType, path string) (*message, error) {
	if reply.Type == typeError {
		return nil, &Error{Code: trimNUL(reply.Payload), Op: t.String(), Path: path}
	}
	if reply.Type != t {
		return nil, fmt.Errorf("unexpected reply %s to %s", reply.Type, t)
	}
	return reply, nil
}

func (c *SocketClient) forget(reqID uint32) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

// session 绑定到某个事务 ID 的操作集合，txID 为 0 表示不在事务中
type session struct {
	c    *SocketClient
	txID uint32
}

func (s session) Read(ctx context.Context, path string) (string, error) {
	reply, err := s.c.request(ctx, s.txID, typeRead, path, joinPayload(path))
	if err != nil {
		return "", err
	}
	return string(reply.Payload), nil
}

func (s session) Write(ctx context.Context, path, value string) error {
	payload := append(joinPayload(path), value...)
	_, err := s.c.request(ctx, s.txID, typeWrite, path, payload)
	return err
}

func (s session) Mkdir(ctx context.Context, path string) error {
	_, err := s.c.request(ctx, s.txID, typeMkdir, path, joinPayload(path))
	return err
}

func (s session) Directory(ctx context.Context, path string) ([]string, error) {
	reply, err := s.c.request(ctx, s.txID, typeDirectory, path, joinPayload(path))
	if err != nil {
		return nil, err
	}
	return splitPayload(reply.Payload), nil
}

func (s session) Remove(ctx context.Context, path string) error {
	_, err := s.c.request(ctx, s.txID, typeRm, path, joinPayload(path))
	return IgnoreNotFound(err)
}

func (s session) SetPermissions(ctx context.Context, path string, acl ACL) error {
	_, err := s.c.request(ctx, s.txID, typeSetPerms, path, joinPayload(append([]string{path}, acl.Encode()...)...))
	return err
}

func (s session) GetPermissions(ctx context.Context, path string) (ACL, error) {
	reply, err := s.c.request(ctx, s.txID, typeGetPerms, path, joinPayload(path))
	if err != nil {
		return ACL{}, err
	}
	return DecodeACL(splitPayload(reply.Payload))
}

// Read 实现 Ops.Read
func (c *SocketClient) Read(ctx context.Context, path string) (string, error) {
	return session{c: c}.Read(ctx, path)
}

// Write 实现 Ops.Write
func (c *SocketClient) Write(ctx context.Context, path, value string) error {
	return session{c: c}.Write(ctx, path, value)
}

// Mkdir 实现 Ops.Mkdir
func (c *SocketClient) Mkdir(ctx context.Context, path string) error {
	return session{c: c}.Mkdir(ctx, path)
}

// Directory 实现 Ops.Directory
func (c *SocketClient) Directory(ctx context.Context, path string) ([]string, error) {
	return session{c: c}.Directory(ctx, path)
}

// Remove 实现 Ops.Remove
func (c *SocketClient) Remove(ctx context.Context, path string) error {
	return session{c: c}.Remove(ctx, path)
}

// SetPermissions 实现 Ops.SetPermissions
func (c *SocketClient) SetPermissions(ctx context.Context, path string, acl ACL) error {
	return session{c: c}.SetPermissions(ctx, path, acl)
}

// GetPermissions 实现 Ops.GetPermissions
func (c *SocketClient) GetPermissions(ctx context.Context, path string) (ACL, error) {
	return session{c: c}.GetPermissions(ctx, path)
}

// Transaction 实现 Client.Transaction
func (c *SocketClient) Transaction(ctx context.Context, fn TxFunc) error {
	logger := zerolog.Ctx(ctx)

	for attempt := 1; ; attempt++ {
		reply, err := c.request(ctx, 0, typeTransactionStart, "", joinPayload(""))
		if err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		txID, err := strconv.ParseUint(trimNUL(reply.Payload), 10, 32)
		if err != nil {
			return fmt.Errorf("parse transaction id %q: %w", reply.Payload, err)
		}

		tx := session{c: c, txID: uint32(txID)}
		if err := fn(ctx, tx); err != nil {
			// ctx 可能已经取消，放弃事务仍要通知 xenstored
			if _, abortErr := c.request(context.WithoutCancel(ctx), tx.txID, typeTransactionEnd, "", joinPayload("F")); abortErr != nil {
				logger.Warn().Err(abortErr).Uint32("tx_id", tx.txID).Msg("Failed to abort transaction")
			}
			return err
		}

		_, err = c.request(ctx, tx.txID, typeTransactionEnd, "", joinPayload("T"))
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return fmt.Errorf("commit transaction: %w", err)
		}
		if c.maxRetries > 0 && attempt >= c.maxRetries {
			return fmt.Errorf("commit transaction after %d attempts: %w", attempt, err)
		}

		logger.Debug().Int("attempt", attempt).Msg("Transaction conflict, retrying")
	}
}

var _ Client = (*SocketClient)(nil)
