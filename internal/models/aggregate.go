package models

// HourlyBucket 单个小时桶（滚动24小时）
type HourlyBucket struct {
	Hour       string `json:"hour"` // "HH:00"
	Detections int    `json:"detections"`
}

// DailyTrend 单日的各情绪检测计数（7天趋势的一项）
type DailyTrend struct {
	Date   string         `json:"date"` // "2006-01-02"
	Counts map[string]int `json:"counts"`
}

// TodaySummary 当日汇总指标
type TodaySummary struct {
	Count              int            `json:"count"`
	AvgDominantPercent float64        `json:"avg_dominant_percent"`
	PerEmotionCounts   map[string]int `json:"per_emotion_counts"`
}

// TodayMetrics 仪表盘"今日概览"响应（汇总指标 + 规则/主导情绪补充）
type TodayMetrics struct {
	TodaySummary
	ActiveRules        int    `json:"active_rules"`
	PredominantEmotion string `json:"predominant_emotion"` // 今日最高频情绪，无数据时为空
}
