package idgen

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// Generator 递增 ID 生成器
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// DefaultGenerator 返回默认的 ID 生成器
func DefaultGenerator() *Generator {
	defaultGeneratorOnce.Do(func() {
		defaultGenerator = New()
	})
	return defaultGenerator
}

// New 创建新的 ID 生成器
func New() *Generator {
	startTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sf := sonyflake.NewSonyflake(sonyflake.Settings{StartTime: startTime})
	if sf == nil {
		// 没有私有网络地址时默认的机器 ID 无法确定，改用进程号
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: startTime,
			MachineID: func() (uint16, error) {
				return uint16(os.Getpid()), nil
			},
		})
	}

	return &Generator{
		sf: sf,
	}
}

// generateIDWithPrefix 生成带前缀的 ID
func (g *Generator) generateIDWithPrefix(prefix, errorMsg string) (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errorMsg, err)
	}
	return prefix + "-" + strconv.FormatUint(id, 10), nil
}

// GenerateRunID 生成基准测试运行 ID（格式：run-{递增 ID}）
func (g *Generator) GenerateRunID() (string, error) {
	return g.generateIDWithPrefix("run", "generate run ID")
}

// GenerateID 生成通用递增 ID
func (g *Generator) GenerateID() (uint64, error) {
	return g.sf.NextID()
}

// GenerateRunID 使用默认生成器生成运行 ID
func GenerateRunID() (string, error) {
	return DefaultGenerator().GenerateRunID()
}
