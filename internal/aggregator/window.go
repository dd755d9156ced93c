package aggregator

import (
	"fmt"
	"sync"
	"time"

	"sinout-engine/internal/emotion"
	"sinout-engine/internal/models"
)

// Window 单个监护对象的滚动聚合状态
// 24 个小时桶（滚动24小时）、7 个天桶（今天及之前6天的各情绪计数）、当日汇总。
// 逐条检测增量更新，查询时不回扫历史；桶过期采用惰性轮转：
// 写入更新日期的事件时清零复用，读取时按期望日期过滤。
// 写入方是该对象的串行管道，读取方是仪表盘查询，互斥锁保护即可
type Window struct {
	mu    sync.Mutex
	loc   *time.Location
	nowFn func() time.Time

	hourly [24]hourlyBucket
	daily  [7]dailyBucket
	today  todayStats
}

// hourlyBucket 小时桶：按小时序号索引，记录计数所属的日期用于惰性轮转
type hourlyBucket struct {
	day   string
	count int
}

// dailyBucket 天桶：按日期序号模 7 索引
type dailyBucket struct {
	day    string
	counts map[string]int
}

// todayStats 当日汇总（均值增量维护，不存全量历史）
type todayStats struct {
	day        string
	count      int
	avgPercent float64
	perEmotion map[string]int
}

// NewWindow 创建聚合窗口
func NewWindow(loc *time.Location) *Window {
	if loc == nil {
		loc = time.Local
	}
	return &Window{
		loc:   loc,
		nowFn: time.Now,
	}
}

// dayKey civil 日期键（小时桶/天桶/当日汇总共用同一天边界）
func (w *Window) dayKey(t time.Time) string {
	return t.In(w.loc).Format("2006-01-02")
}

// daySlot 日期 → 天桶下标（同一天永远落在同一个槽）
func (w *Window) daySlot(t time.Time) int {
	local := t.In(w.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	days := midnight.Unix() / 86400
	return int((days%7 + 7) % 7)
}

// Record 将一条检测折算进各个桶
// 事件到达顺序没有保证：每个桶只接收落在自己窗口内的事件，
// 且只在事件日期比桶里的日期更新时才轮转——迟到的旧事件不得冲掉新计数。
// 日期键是 "2006-01-02"，字典序即时间序
func (w *Window) Record(det *models.Detection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFn().In(w.loc)
	local := det.Timestamp.In(w.loc)
	day := w.dayKey(local)

	// 小时桶只覆盖滚动24小时
	if !local.Before(now.Add(-24 * time.Hour)) {
		h := local.Hour()
		if day > w.hourly[h].day {
			w.hourly[h] = hourlyBucket{day: day}
		}
		if w.hourly[h].day == day {
			w.hourly[h].count++
		}
	}

	// 天桶覆盖今天及之前6天（7 个 civil 日恰好占满 7 个槽，不会撞槽）
	if day >= w.dayKey(now.AddDate(0, 0, -6)) && day <= w.dayKey(now) {
		slot := w.daySlot(local)
		if day > w.daily[slot].day {
			w.daily[slot] = dailyBucket{day: day, counts: make(map[string]int)}
		}
		if w.daily[slot].day == day {
			w.daily[slot].counts[det.DominantEmotion]++
		}
	}

	// 当日汇总：只折算落在当前 civil 日内的检测
	w.rotateTodayLocked(now)
	if day == w.today.day {
		w.today.count++
		// 增量均值：avg' = avg + (value - avg) / n
		w.today.avgPercent += (det.DominantPercent - w.today.avgPercent) / float64(w.today.count)
		w.today.perEmotion[det.DominantEmotion]++
	}
}

// rotateTodayLocked 跨天后重置当日汇总
func (w *Window) rotateTodayLocked(now time.Time) {
	nowDay := w.dayKey(now)
	if w.today.day != nowDay {
		w.today = todayStats{
			day:        nowDay,
			perEmotion: make(map[string]int),
		}
	}
}

// QueryHourly 返回 24 个小时桶（滚动24小时，按小时序号 00..23）
func (w *Window) QueryHourly() []models.HourlyBucket {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFn().In(w.loc)
	todayKey := w.dayKey(now)
	yesterdayKey := w.dayKey(now.AddDate(0, 0, -1))

	result := make([]models.HourlyBucket, 24)
	for h := 0; h < 24; h++ {
		// 滚动24小时：当前小时之前（含）属于今天，之后属于昨天
		expected := todayKey
		if h > now.Hour() {
			expected = yesterdayKey
		}
		count := 0
		if w.hourly[h].day == expected {
			count = w.hourly[h].count
		}
		result[h] = models.HourlyBucket{
			Hour:       fmt.Sprintf("%02d:00", h),
			Detections: count,
		}
	}
	return result
}

// QueryDailyTrend 返回 7 天趋势（今天之前6天 + 今天，从旧到新），空天补零
func (w *Window) QueryDailyTrend() []models.DailyTrend {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFn().In(w.loc)

	result := make([]models.DailyTrend, 0, 7)
	for i := 6; i >= 0; i-- {
		d := now.AddDate(0, 0, -i)
		day := w.dayKey(d)
		slot := w.daySlot(d)

		counts := make(map[string]int, len(emotion.Vocabulary))
		for _, e := range emotion.Vocabulary {
			counts[e] = 0
		}
		if w.daily[slot].day == day {
			for e, c := range w.daily[slot].counts {
				counts[e] = c
			}
		}
		result = append(result, models.DailyTrend{Date: day, Counts: counts})
	}
	return result
}

// QueryTodaySummary 返回当日汇总
func (w *Window) QueryTodaySummary() models.TodaySummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rotateTodayLocked(w.nowFn().In(w.loc))

	perEmotion := make(map[string]int, len(w.today.perEmotion))
	for e, c := range w.today.perEmotion {
		perEmotion[e] = c
	}
	return models.TodaySummary{
		Count:              w.today.count,
		AvgDominantPercent: w.today.avgPercent,
		PerEmotionCounts:   perEmotion,
	}
}

// PredominantToday 今日最高频情绪（无数据时为空字符串）
func (w *Window) PredominantToday() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rotateTodayLocked(w.nowFn().In(w.loc))
	return emotion.PredominantCount(w.today.perEmotion)
}
