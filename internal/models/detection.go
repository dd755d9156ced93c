package models

import (
	"time"
)

// Detection 一次规范化后的表情分类结果（对应一个监护对象的一帧识别）
type Detection struct {
	SubjectID       string             `json:"subject_id"`
	OwnerID         string             `json:"owner_id"`
	Timestamp       time.Time          `json:"timestamp"`
	Scores          map[string]float64 `json:"scores"`           // 固定词表：happy/sad/angry/fear/disgust/surprise/neutral，百分比 [0,100]
	DominantEmotion string             `json:"dominant_emotion"` // Scores 中最大值对应的情绪（并列时按固定优先级）
	DominantPercent float64            `json:"dominant_percent"` // Scores[DominantEmotion]
}

// MatchResult 规则评估结果
// Fired=false 且 Suppressed=true 表示规则匹配但处于冷却期（用于诊断统计，不发消息）
type MatchResult struct {
	Fired      bool   `json:"fired"`
	Suppressed bool   `json:"suppressed"`
	RuleID     string `json:"rule_id,omitempty"`
	Message    string `json:"message,omitempty"`
}
