package service

import (
	"sync/atomic"
)

// Stats 管道运行计数（诊断用，healthz 暴露）
type Stats struct {
	Processed         atomic.Int64 // 成功落库的检测数
	Fired             atomic.Int64 // 触发报警数
	Suppressed        atomic.Int64 // 匹配但被冷却抑制数
	InvalidDetections atomic.Int64 // 不合法输入丢弃数
	DroppedQueueFull  atomic.Int64 // 队列满丢弃数
	SnapshotFallbacks atomic.Int64 // 规则快照不可用、按无匹配处理数
	StorageFailures   atomic.Int64 // 历史写入重试耗尽数
}

// StatsSnapshot 计数快照
type StatsSnapshot struct {
	Processed         int64 `json:"processed"`
	Fired             int64 `json:"fired"`
	Suppressed        int64 `json:"suppressed"`
	InvalidDetections int64 `json:"invalid_detections"`
	DroppedQueueFull  int64 `json:"dropped_queue_full"`
	SnapshotFallbacks int64 `json:"snapshot_fallbacks"`
	StorageFailures   int64 `json:"storage_failures"`
}

// Snapshot 读取当前计数
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:         s.Processed.Load(),
		Fired:             s.Fired.Load(),
		Suppressed:        s.Suppressed.Load(),
		InvalidDetections: s.InvalidDetections.Load(),
		DroppedQueueFull:  s.DroppedQueueFull.Load(),
		SnapshotFallbacks: s.SnapshotFallbacks.Load(),
		StorageFailures:   s.StorageFailures.Load(),
	}
}
