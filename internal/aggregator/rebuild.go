package aggregator

import (
	"context"
	"fmt"
	"time"

	"sinout-engine/internal/models"
)

// HistorySource 重放数据源（由 repository.HistoryRepository 实现）
type HistorySource interface {
	QueryRange(ctx context.Context, subjectID string, from, to time.Time) ([]models.HistoryRecord, error)
}

// Rebuild 从历史日志全量重放，重建一个聚合窗口
// 聚合状态丢失（进程重启）时的恢复路径：重放结果与增量维护的状态一致
func Rebuild(ctx context.Context, src HistorySource, subjectID string, loc *time.Location) (*Window, error) {
	return rebuildWindow(ctx, src, subjectID, NewWindow(loc))
}

// Replay 将历史日志重放进一个已存在的窗口
// Record 自带互斥，重放期间窗口可以被并发查询
func Replay(ctx context.Context, src HistorySource, subjectID string, w *Window) error {
	_, err := rebuildWindow(ctx, src, subjectID, w)
	return err
}

func rebuildWindow(ctx context.Context, src HistorySource, subjectID string, w *Window) (*Window, error) {
	now := w.nowFn()
	from := now.AddDate(0, 0, -7)

	records, err := src.QueryRange(ctx, subjectID, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for rebuild: %w", err)
	}

	for i := range records {
		rec := &records[i]
		w.Record(&models.Detection{
			SubjectID:       rec.SubjectID,
			OwnerID:         rec.OwnerID,
			Timestamp:       rec.Timestamp,
			Scores:          rec.Scores,
			DominantEmotion: rec.DominantEmotion,
			DominantPercent: rec.DominantPercent,
		})
	}

	return w, nil
}
