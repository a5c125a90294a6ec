// Package idgen 提供递增 ID 生成器
//
// 使用 Sonyflake 算法生成全局唯一且时间有序的 64 位 ID，
// 用来标识每一次基准测试运行，日志和状态接口中都带有该 ID。
//
// 生成的 ID 格式：
//   - 运行 ID: run-{递增数字}
//
// 使用方式：
//
//	runID, err := idgen.GenerateRunID()
//	// runID: "run-1234567890"
package idgen
