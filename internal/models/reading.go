package models

import (
	"time"
)

// Reading 分类器的一帧原始输出（规范化之前）
// SubjectID 来自订阅主题，其余字段来自消息载荷
type Reading struct {
	SubjectID        string
	OwnerID          string
	Timestamp        time.Time
	Scores           map[string]float64
	MonitoringPaused bool // 看护端暂停监测时只记录分类，不评估规则
}
