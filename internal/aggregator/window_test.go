package aggregator

import (
	"context"
	"testing"
	"time"

	"sinout-engine/internal/emotion"
	"sinout-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow 固定测试时钟：2025-06-15 14:30 UTC
var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func newTestWindow() *Window {
	w := NewWindow(time.UTC)
	w.nowFn = func() time.Time { return fixedNow }
	return w
}

func detectionAt(ts time.Time, dominant string, percent float64) *models.Detection {
	return &models.Detection{
		SubjectID:       "subject-1",
		OwnerID:         "owner-1",
		Timestamp:       ts,
		Scores:          map[string]float64{dominant: percent},
		DominantEmotion: dominant,
		DominantPercent: percent,
	}
}

func TestWindow_HourlyBucketCounts(t *testing.T) {
	w := newTestWindow()

	// 同一小时内 25 条检测
	base := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		w.Record(detectionAt(base.Add(time.Duration(i)*time.Minute), emotion.Happy, 70))
	}

	hourly := w.QueryHourly()
	require.Len(t, hourly, 24)
	assert.Equal(t, "09:00", hourly[9].Hour)
	assert.Equal(t, 25, hourly[9].Detections)
	for h, bucket := range hourly {
		if h != 9 {
			assert.Equal(t, 0, bucket.Detections, "hour %d should be untouched", h)
		}
	}
}

func TestWindow_HourlyLazyRotation(t *testing.T) {
	w := newTestWindow()

	// 昨天 20:00 的检测（当前 14:30，20 点在滚动24小时内属于昨天）
	yesterday := time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC)
	w.Record(detectionAt(yesterday, emotion.Happy, 70))
	assert.Equal(t, 1, w.QueryHourly()[20].Detections)

	// 前天 20:00 的桶内容不应出现在滚动窗口里
	w2 := newTestWindow()
	twoDaysAgo := time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC)
	w2.Record(detectionAt(twoDaysAgo, emotion.Happy, 70))
	assert.Equal(t, 0, w2.QueryHourly()[20].Detections)

	// 复用时先清零：前天的计数不会混进昨天的
	w2.Record(detectionAt(yesterday, emotion.Sad, 70))
	assert.Equal(t, 1, w2.QueryHourly()[20].Detections)
}

func TestWindow_DailyTrendWindow(t *testing.T) {
	w := newTestWindow()

	// 今天 2 条 happy，3天前 1 条 sad
	w.Record(detectionAt(fixedNow.Add(-time.Hour), emotion.Happy, 70))
	w.Record(detectionAt(fixedNow.Add(-2*time.Hour), emotion.Happy, 80))
	w.Record(detectionAt(fixedNow.AddDate(0, 0, -3), emotion.Sad, 60))

	trend := w.QueryDailyTrend()
	require.Len(t, trend, 7)

	// 从旧到新，最后一项是今天
	assert.Equal(t, "2025-06-09", trend[0].Date)
	assert.Equal(t, "2025-06-15", trend[6].Date)

	assert.Equal(t, 2, trend[6].Counts[emotion.Happy])
	assert.Equal(t, 1, trend[3].Counts[emotion.Sad])

	// 空天补零且词表齐全
	for _, day := range trend {
		assert.Len(t, day.Counts, 7)
	}
	assert.Equal(t, 0, trend[1].Counts[emotion.Angry])
}

func TestWindow_TodaySummaryRunningMean(t *testing.T) {
	w := newTestWindow()

	w.Record(detectionAt(fixedNow.Add(-time.Hour), emotion.Happy, 60))
	w.Record(detectionAt(fixedNow.Add(-30*time.Minute), emotion.Sad, 80))
	w.Record(detectionAt(fixedNow.Add(-10*time.Minute), emotion.Happy, 70))

	summary := w.QueryTodaySummary()
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 70.0, summary.AvgDominantPercent, 1e-9)
	assert.Equal(t, 2, summary.PerEmotionCounts[emotion.Happy])
	assert.Equal(t, 1, summary.PerEmotionCounts[emotion.Sad])
	assert.Equal(t, emotion.Happy, w.PredominantToday())
}

func TestWindow_TodaySummaryExcludesOtherDays(t *testing.T) {
	w := newTestWindow()

	// 昨天的检测进小时桶/天桶，但不进当日汇总
	w.Record(detectionAt(fixedNow.AddDate(0, 0, -1), emotion.Angry, 90))

	summary := w.QueryTodaySummary()
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, 0.0, summary.AvgDominantPercent)
	assert.Equal(t, "", w.PredominantToday())
}

func TestWindow_LateStaleEventKeepsHourlyBucket(t *testing.T) {
	w := newTestWindow()

	// 今天 09:00 的检测
	w.Record(detectionAt(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC), emotion.Happy, 70))
	require.Equal(t, 1, w.QueryHourly()[9].Detections)

	// 昨天 09:00 的事件迟到（滚动24小时之外）：不得冲掉今天的 09:00 计数
	w.Record(detectionAt(time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC), emotion.Sad, 60))
	assert.Equal(t, 1, w.QueryHourly()[9].Detections)
}

func TestWindow_LateStaleEventKeepsDailyBucket(t *testing.T) {
	w := newTestWindow()

	// 今天的检测
	w.Record(detectionAt(fixedNow.Add(-time.Hour), emotion.Happy, 70))
	require.Equal(t, 1, w.QueryDailyTrend()[6].Counts[emotion.Happy])

	// 恰好 7 天前的事件迟到（civil 日是 today-7，撞今天的模 7 槽）：
	// 窗口只覆盖今天及之前6天，该事件直接忽略
	w.Record(detectionAt(fixedNow.AddDate(0, 0, -7), emotion.Sad, 60))
	trend := w.QueryDailyTrend()
	assert.Equal(t, 1, trend[6].Counts[emotion.Happy])
	assert.Equal(t, 0, trend[6].Counts[emotion.Sad])
}

func TestWindow_RecordIgnoresAncientEvents(t *testing.T) {
	w := newTestWindow()

	w.Record(detectionAt(fixedNow.AddDate(0, 0, -30), emotion.Happy, 70))

	for _, bucket := range w.QueryHourly() {
		assert.Equal(t, 0, bucket.Detections)
	}
	assert.Equal(t, 0, w.QueryTodaySummary().Count)
}

// fakeHistorySource 重放测试用的内存数据源
type fakeHistorySource struct {
	records []models.HistoryRecord
}

func (f *fakeHistorySource) QueryRange(_ context.Context, subjectID string, from, to time.Time) ([]models.HistoryRecord, error) {
	var out []models.HistoryRecord
	for _, rec := range f.records {
		if rec.SubjectID == subjectID && !rec.Timestamp.Before(from) && !rec.Timestamp.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestRebuild_MatchesIncrementalState(t *testing.T) {
	incremental := newTestWindow()

	detections := []*models.Detection{
		detectionAt(fixedNow.Add(-time.Hour), emotion.Happy, 60),
		detectionAt(fixedNow.Add(-2*time.Hour), emotion.Sad, 80),
		detectionAt(fixedNow.AddDate(0, 0, -2), emotion.Angry, 75),
		detectionAt(fixedNow.AddDate(0, 0, -5), emotion.Fear, 55),
		detectionAt(fixedNow.Add(-5*time.Minute), emotion.Happy, 90),
	}

	src := &fakeHistorySource{}
	for i, det := range detections {
		incremental.Record(det)
		src.records = append(src.records, models.HistoryRecord{
			RecordID:        string(rune('a' + i)),
			SubjectID:       det.SubjectID,
			OwnerID:         det.OwnerID,
			Timestamp:       det.Timestamp,
			Scores:          det.Scores,
			DominantEmotion: det.DominantEmotion,
			DominantPercent: det.DominantPercent,
		})
	}

	rebuilt, err := rebuildWindow(context.Background(), src, "subject-1", newTestWindow())
	require.NoError(t, err)

	// 重放结果与增量维护的状态一致
	assert.Equal(t, incremental.QueryHourly(), rebuilt.QueryHourly())
	assert.Equal(t, incremental.QueryDailyTrend(), rebuilt.QueryDailyTrend())
	assert.Equal(t, incremental.QueryTodaySummary(), rebuilt.QueryTodaySummary())
}
