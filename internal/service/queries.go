package service

import (
	"context"

	"sinout-engine/internal/aggregator"
	"sinout-engine/internal/models"

	"go.uber.org/zap"
)

// 仪表盘查询全部走聚合窗口的常数时间读取；只有"最近动态"读历史日志。
// 对象管道尚未建立（服务刚重启、还没收到新读数）时，按需从历史日志重放
// 一个临时窗口应答，不缓存

// TodayMetrics 今日概览
func (d *Dispatcher) TodayMetrics(ctx context.Context, subjectID string) (*models.TodayMetrics, error) {
	w, err := d.windowOrReplay(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	metrics := &models.TodayMetrics{
		TodaySummary:       w.QueryTodaySummary(),
		PredominantEmotion: w.PredominantToday(),
	}

	// 规则计数来自当前快照（快照里只有启用的规则）
	ownerID, ok := d.ownerOf(subjectID)
	if !ok {
		// 管道尚未建立（服务刚重启）：从最近一条历史记录回推 owner
		if recs, err := d.history.QueryRecent(ctx, subjectID, 1); err == nil && len(recs) > 0 {
			ownerID = recs[0].OwnerID
			ok = true
		}
	}
	if ok {
		rules, err := d.snapshots.Get(ctx, ownerID)
		if err != nil {
			d.logger.Warn("Failed to count active rules for metrics",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
		} else {
			metrics.ActiveRules = len(rules)
		}
	}

	return metrics, nil
}

// HourlyVolume 滚动24小时的检测量
func (d *Dispatcher) HourlyVolume(ctx context.Context, subjectID string) ([]models.HourlyBucket, error) {
	w, err := d.windowOrReplay(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return w.QueryHourly(), nil
}

// WeeklyTrend 7天各情绪趋势
func (d *Dispatcher) WeeklyTrend(ctx context.Context, subjectID string) ([]models.DailyTrend, error) {
	w, err := d.windowOrReplay(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return w.QueryDailyTrend(), nil
}

// RecentActivity 最近动态（按时间倒序）
func (d *Dispatcher) RecentActivity(ctx context.Context, subjectID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return d.history.QueryRecent(ctx, subjectID, limit)
}

// windowOrReplay 取在线窗口，没有就从历史重放一个临时窗口
func (d *Dispatcher) windowOrReplay(ctx context.Context, subjectID string) (*aggregator.Window, error) {
	if w := d.window(subjectID); w != nil {
		return w, nil
	}
	return aggregator.Rebuild(ctx, d.history, subjectID, d.loc)
}
