package models

import (
	"time"
)

// HistoryRecord 一次检测的持久化结果（对应 detection_history 表）
// 写入后不可变；按 timestamp 倒序查询最近记录
type HistoryRecord struct {
	RecordID        string             `json:"record_id" db:"record_id"`
	SubjectID       string             `json:"subject_id" db:"subject_id"`
	OwnerID         string             `json:"owner_id" db:"owner_id"`
	Timestamp       time.Time          `json:"timestamp" db:"ts"`
	Scores          map[string]float64 `json:"scores" db:"scores"` // JSONB
	DominantEmotion string             `json:"dominant_emotion" db:"dominant_emotion"`
	DominantPercent float64            `json:"dominant_percent" db:"dominant_percent"`
	FiredRuleID     *string            `json:"fired_rule_id,omitempty" db:"fired_rule_id"`
	FiredMessage    *string            `json:"fired_message,omitempty" db:"fired_message"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
}

// NewHistoryRecord 从检测结果和匹配结果构建历史记录
func NewHistoryRecord(recordID string, det *Detection, match *MatchResult) *HistoryRecord {
	rec := &HistoryRecord{
		RecordID:        recordID,
		SubjectID:       det.SubjectID,
		OwnerID:         det.OwnerID,
		Timestamp:       det.Timestamp,
		Scores:          det.Scores,
		DominantEmotion: det.DominantEmotion,
		DominantPercent: det.DominantPercent,
	}
	if match != nil && match.Fired {
		ruleID := match.RuleID
		message := match.Message
		rec.FiredRuleID = &ruleID
		rec.FiredMessage = &message
	}
	return rec
}
