package entity

import (
	"fmt"
	"io"
	"time"
)

// QueryResult query 负载三个阶段各自的耗时（秒）
type QueryResult struct {
	Start    float64 `json:"start"`    // 顺序启动所有 VM
	Query    float64 `json:"query"`    // 并发读取轮次
	Shutdown float64 `json:"shutdown"` // 顺序关闭所有 VM
}

// Report 一次基准测试的结果
type Report struct {
	Count      int         `json:"count"`      // -n，实际运行 Count+1 个 VM
	Rounds     int         `json:"rounds"`     // query 轮数
	Sequential float64     `json:"sequential"` // 顺序启停耗时
	Parallel   float64     `json:"parallel"`   // 并发启停耗时
	Query      QueryResult `json:"query"`      // query 负载耗时
}

// WriteTo 输出三行结果
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"%d sequential starts and shutdowns: %s\n"+
			"%d parallel starts and shutdowns: %s\n"+
			"%d read queries per %d VMs: %s\n",
		r.Count, formatSeconds(r.Sequential),
		r.Count, formatSeconds(r.Parallel),
		r.Rounds, r.Count, formatSeconds(r.Query.Query),
	)
	return int64(n), err
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.6f", s)
}

// Phase 运行阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSequential Phase = "sequential"
	PhaseParallel   Phase = "parallel"
	PhaseQuery      Phase = "query"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Status 运行状态，供状态接口展示
type Status struct {
	RunID     string    `json:"run_id"`           // 本次运行 ID
	Phase     Phase     `json:"phase"`            // 当前阶段
	Count     int       `json:"count"`            // -n
	Rounds    int       `json:"rounds"`           // query 轮数
	Cycles    int64     `json:"cycles"`           // 已完成的启停次数
	Reads     int64     `json:"reads"`            // 已完成的 query 读取次数
	StartedAt time.Time `json:"started_at"`       // 开始时间
	Report    *Report   `json:"report,omitempty"` // 完成后的结果
	Error     string    `json:"error,omitempty"`  // 失败原因
}
