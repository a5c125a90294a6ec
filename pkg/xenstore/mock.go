package xenstore

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 是 Client 的 mock 实现
// 用于测试，不需要真实的 xenstored
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建新的 MockClient
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Read(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Write(ctx context.Context, path, value string) error {
	args := m.Called(ctx, path, value)
	return args.Error(0)
}

func (m *MockClient) Mkdir(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockClient) Directory(ctx context.Context, path string) ([]string, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockClient) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockClient) SetPermissions(ctx context.Context, path string, acl ACL) error {
	args := m.Called(ctx, path, acl)
	return args.Error(0)
}

func (m *MockClient) GetPermissions(ctx context.Context, path string) (ACL, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return ACL{}, args.Error(1)
	}
	return args.Get(0).(ACL), args.Error(1)
}

// Transaction 返回预设错误时不执行 fn；否则以 mock 自身作为事务句柄执行 fn
func (m *MockClient) Transaction(ctx context.Context, fn TxFunc) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ Client = (*MockClient)(nil)
