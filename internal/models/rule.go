package models

import (
	"time"
)

// IntensityLevel 规则强度等级（仅用于展示权重，不参与匹配）
type IntensityLevel string

const (
	IntensityLow    IntensityLevel = "low"
	IntensityMedium IntensityLevel = "medium"
	IntensityHigh   IntensityLevel = "high"
)

// ParseIntensityLevel 解析强度等级，未知值归为 low
func ParseIntensityLevel(s string) IntensityLevel {
	switch IntensityLevel(s) {
	case IntensityMedium:
		return IntensityMedium
	case IntensityHigh:
		return IntensityHigh
	default:
		return IntensityLow
	}
}

// Weight 强度等级的展示权重
func (l IntensityLevel) Weight() int {
	switch l {
	case IntensityHigh:
		return 3
	case IntensityMedium:
		return 2
	default:
		return 1
	}
}

// Rule 看护人配置的报警规则（对应 rules 表）
// 规则创建后 RuleID 不可变；Message/MinPercent/Priority/Active 由外部管理端修改，
// 本引擎只读快照，从不写回
type Rule struct {
	RuleID         string         `json:"rule_id" db:"rule_id"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	Emotion        string         `json:"emotion" db:"emotion"`
	IntensityLevel IntensityLevel `json:"intensity_level" db:"intensity_level"`
	MinPercent     float64        `json:"min_percent" db:"min_percent"` // 触发阈值 [0,100]
	Message        string         `json:"message" db:"message"`
	Priority       int            `json:"priority" db:"priority"` // 数值越大优先级越高
	Active         bool           `json:"active" db:"active"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty" db:"updated_at"`
}
