package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

const (
	StoreSocket = "socket" // 通过 unix socket 连接 xenstored
	StoreMemory = "memory" // 进程内存储，用于演练
)

type Config struct {
	// StorePath 是 xenstored 的 unix socket 路径
	// 可以通过环境变量 XSBENCH_STORE_PATH 或 XENSTORED_PATH 配置
	// 默认：/var/run/xenstored/socket
	StorePath string `yaml:"store_path"`

	// Store 存储类型，socket 或 memory
	// 可以通过环境变量 XSBENCH_STORE 配置
	Store string `yaml:"store"`

	// Count 模拟的 domain 数量，实际运行 domain 0..Count
	Count int `yaml:"count"`

	// Rounds query 负载的轮数
	Rounds int `yaml:"rounds"`

	// Prefix 所有节点所在的子树，"/" 表示直接使用真实路径
	// 可以通过环境变量 XSBENCH_PREFIX 配置
	Prefix string `yaml:"prefix"`

	// Listen 状态接口监听地址，为空时不启动
	// 可以通过环境变量 XSBENCH_LISTEN 配置
	Listen string `yaml:"listen"`

	Verbose bool `yaml:"verbose"`

	// MaxTransactionRetries 事务冲突的最大重试次数，0 表示不限制
	MaxTransactionRetries int `yaml:"max_transaction_retries"`

	// Devices 每个 VM 挂载的设备，为空时使用两块磁盘加一块网卡
	Devices []entity.DeviceTemplate `yaml:"devices"`
}

// New 创建配置：默认值，然后是环境变量，最后是 XSBENCH_CONFIG 指定的配置文件
func New() (*Config, error) {
	cfg := &Config{
		StorePath: getStorePath(),
		Store:     getEnv("XSBENCH_STORE", StoreSocket),
		Count:     300,
		Rounds:    100,
		Prefix:    getEnv("XSBENCH_PREFIX", entity.DefaultPrefix),
		Listen:    os.Getenv("XSBENCH_LISTEN"),
	}

	if path := os.Getenv("XSBENCH_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFile 读取 YAML 配置文件，文件中的非空字段覆盖当前值
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := copier.CopyWithOption(c, &file, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		return fmt.Errorf("merge config file %s: %w", path, err)
	}
	return nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreSocket, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q, want %s or %s", c.Store, StoreSocket, StoreMemory))
	}
	if c.Count < 0 {
		errs = append(errs, fmt.Errorf("count must not be negative, got %d", c.Count))
	}
	if c.Rounds < 0 {
		errs = append(errs, fmt.Errorf("rounds must not be negative, got %d", c.Rounds))
	}
	if c.MaxTransactionRetries < 0 {
		errs = append(errs, fmt.Errorf("max transaction retries must not be negative, got %d", c.MaxTransactionRetries))
	}
	if _, err := entity.NewLayout(c.Prefix); err != nil {
		errs = append(errs, err)
	}
	for i, tpl := range c.Devices {
		if _, err := tpl.Device(0); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Layout 按前缀构造路径布局，调用前应先 Validate
func (c *Config) Layout() (entity.Layout, error) {
	return entity.NewLayout(c.Prefix)
}

// getStorePath 获取 socket 路径，优先使用环境变量
func getStorePath() string {
	// 1. 优先使用环境变量 XSBENCH_STORE_PATH
	if path := os.Getenv("XSBENCH_STORE_PATH"); path != "" {
		return path
	}

	// 2. 兼容 xenstore 工具使用的 XENSTORED_PATH
	if path := os.Getenv("XENSTORED_PATH"); path != "" {
		return path
	}

	return xenstore.DefaultSocketPath
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
