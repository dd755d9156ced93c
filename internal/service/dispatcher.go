package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sinout-engine/internal/aggregator"
	"sinout-engine/internal/emotion"
	"sinout-engine/internal/models"
	"sinout-engine/internal/rulecache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryStore 历史日志存储（由 repository.HistoryRepository 实现）
type HistoryStore interface {
	Append(ctx context.Context, rec *models.HistoryRecord) error
	QueryRecent(ctx context.Context, subjectID string, limit int) ([]models.HistoryRecord, error)
	QueryRange(ctx context.Context, subjectID string, from, to time.Time) ([]models.HistoryRecord, error)
}

// SnapshotProvider 规则快照提供方（由 rulecache.SnapshotCache 实现）
type SnapshotProvider interface {
	Get(ctx context.Context, ownerID string) ([]models.Rule, error)
}

// RuleEvaluator 规则引擎（由 engine.Engine 实现）
type RuleEvaluator interface {
	Evaluate(ctx context.Context, det *models.Detection, snapshot []models.Rule) (*models.MatchResult, error)
}

// AlertSink 报警分发（由 notifier.Notifier 实现）
type AlertSink interface {
	NotifyFired(ctx context.Context, det *models.Detection, match *models.MatchResult) error
}

// AppendRetry 历史写入重试参数
type AppendRetry struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Dispatcher 按对象分发检测事件
// 每个对象一个串行管道（worker + 有界队列）：同一对象内冷却状态和聚合窗口
// 的更新严格串行，不同对象之间完全并行、无共享可变状态
type Dispatcher struct {
	history   HistoryStore
	snapshots SnapshotProvider
	evaluator RuleEvaluator
	alerts    AlertSink
	loc       *time.Location
	queueSize int
	retry     AppendRetry
	logger    *zap.Logger
	stats     *Stats

	mu        sync.Mutex
	pipelines map[string]*pipeline
	stopped   bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDispatcher 创建分发器
func NewDispatcher(
	history HistoryStore,
	snapshots SnapshotProvider,
	evaluator RuleEvaluator,
	alerts AlertSink,
	loc *time.Location,
	queueSize int,
	retry AppendRetry,
	logger *zap.Logger,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		history:   history,
		snapshots: snapshots,
		evaluator: evaluator,
		alerts:    alerts,
		loc:       loc,
		queueSize: queueSize,
		retry:     retry,
		logger:    logger,
		stats:     &Stats{},
		pipelines: make(map[string]*pipeline),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stats 运行计数
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Enqueue 将一条读数投递到对应对象的管道
// 队列满时丢弃并计数：下一帧分类结果很快会到，阻塞上游订阅更有害
func (d *Dispatcher) Enqueue(reading models.Reading) bool {
	p, err := d.pipelineFor(reading.SubjectID, reading.OwnerID)
	if err != nil {
		d.logger.Error("Failed to create subject pipeline",
			zap.String("subject_id", reading.SubjectID),
			zap.Error(err),
		)
		return false
	}

	select {
	case p.queue <- reading:
		return true
	default:
		d.stats.DroppedQueueFull.Add(1)
		d.logger.Warn("Subject queue full, dropping reading",
			zap.String("subject_id", reading.SubjectID),
		)
		return false
	}
}

// pipelineFor 取出或创建对象管道
// 历史重放在管道自己的 goroutine 里做（见 run），锁内不做任何 I/O：
// 一个对象的重放慢不能挡住其它对象的投递
func (d *Dispatcher) pipelineFor(subjectID, ownerID string) (*pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, fmt.Errorf("dispatcher is stopped")
	}
	if p, ok := d.pipelines[subjectID]; ok {
		return p, nil
	}

	p := &pipeline{
		subjectID: subjectID,
		ownerID:   ownerID,
		queue:     make(chan models.Reading, d.queueSize),
		stop:      make(chan struct{}),
		window:    aggregator.NewWindow(d.loc),
		d:         d,
	}
	d.pipelines[subjectID] = p

	d.wg.Add(1)
	go p.run()

	d.logger.Info("Subject pipeline started",
		zap.String("subject_id", subjectID),
		zap.String("owner_id", ownerID),
	)

	return p, nil
}

// Stop 停机：不再接收新读数，在途事件处理完（含落库）后返回
// 队列从不 close（投递方可能还拿着管道引用），停机信号走专门的 stop 通道
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, p := range d.pipelines {
		close(p.stop)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}

// window 某对象的聚合窗口（无管道时返回 nil）
func (d *Dispatcher) window(subjectID string) *aggregator.Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[subjectID]; ok {
		return p.window
	}
	return nil
}

// ownerOf 某对象所属的看护人
func (d *Dispatcher) ownerOf(subjectID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[subjectID]; ok {
		return p.ownerID, true
	}
	return "", false
}

// pipeline 单个对象的串行处理管道
type pipeline struct {
	subjectID string
	ownerID   string
	queue     chan models.Reading
	stop      chan struct{}
	window    *aggregator.Window
	failed    bool
	d         *Dispatcher
}

// run 先从历史日志重放重建聚合窗口（重启后仪表盘数据连续），再串行消费队列；
// 存储故障重试耗尽后停机（不越过未确认的写入继续推进）。
// 收到停机信号后把停机前已入队的读数排空再退出
func (p *pipeline) run() {
	defer p.d.wg.Done()

	if err := aggregator.Replay(p.d.ctx, p.d.history, p.subjectID, p.window); err != nil {
		p.d.logger.Warn("Failed to rebuild aggregate window, starting empty",
			zap.String("subject_id", p.subjectID),
			zap.Error(err),
		)
	}

	for {
		select {
		case reading := <-p.queue:
			if !p.failed {
				p.process(reading)
			}
		case <-p.stop:
			for {
				select {
				case reading := <-p.queue:
					if !p.failed {
						p.process(reading)
					}
				default:
					return
				}
			}
		}
	}
}

// process 处理一条读数：规范化 → 规则评估 → 落库 → 聚合更新 → 报警分发
func (p *pipeline) process(reading models.Reading) {
	ctx := p.d.ctx
	d := p.d

	det, err := emotion.Normalize(reading.SubjectID, reading.OwnerID, reading.Timestamp, reading.Scores)
	if err != nil {
		// 不合法输入丢弃计数，不影响冷却状态和聚合窗口
		d.stats.InvalidDetections.Add(1)
		d.logger.Warn("Dropping invalid detection",
			zap.String("subject_id", reading.SubjectID),
			zap.Error(err),
		)
		return
	}

	var match *models.MatchResult
	if !reading.MonitoringPaused {
		snapshot, err := d.snapshots.Get(ctx, det.OwnerID)
		if err != nil {
			if errors.Is(err, rulecache.ErrSnapshotUnavailable) {
				// 规则快照不可用：按无匹配处理，只记录分类结果
				d.stats.SnapshotFallbacks.Add(1)
				d.logger.Warn("Rule snapshot unavailable, recording classification only",
					zap.String("subject_id", det.SubjectID),
					zap.String("owner_id", det.OwnerID),
				)
			} else {
				d.logger.Error("Failed to get rule snapshot",
					zap.String("owner_id", det.OwnerID),
					zap.Error(err),
				)
			}
		} else {
			match, err = d.evaluator.Evaluate(ctx, det, snapshot)
			if err != nil {
				d.stats.InvalidDetections.Add(1)
				d.logger.Warn("Dropping detection rejected by rule engine",
					zap.String("subject_id", det.SubjectID),
					zap.Error(err),
				)
				return
			}
		}
	}

	rec := models.NewHistoryRecord(uuid.New().String(), det, match)
	if err := p.appendWithRetry(ctx, rec); err != nil {
		// 重试耗尽属于不可恢复的存储故障：该对象管道停机并上报运维，
		// 不丢弃未确认的写入去处理后续事件
		d.stats.StorageFailures.Add(1)
		p.failed = true
		d.logger.Error("History append failed after retries, halting subject pipeline",
			zap.String("subject_id", p.subjectID),
			zap.Error(err),
		)
		return
	}

	// 聚合更新在落库之后，读侧看到的聚合值一定有对应的历史记录
	p.window.Record(det)
	d.stats.Processed.Add(1)

	if match == nil {
		return
	}
	if match.Suppressed {
		d.stats.Suppressed.Add(1)
	}
	if match.Fired {
		d.stats.Fired.Add(1)
		if err := d.alerts.NotifyFired(ctx, det, match); err != nil {
			d.logger.Warn("Failed to dispatch alert",
				zap.String("subject_id", det.SubjectID),
				zap.String("rule_id", match.RuleID),
				zap.Error(err),
			)
		}
	}
}

// appendWithRetry 有界退避重试的历史写入
func (p *pipeline) appendWithRetry(ctx context.Context, rec *models.HistoryRecord) error {
	var lastErr error
	backoff := p.d.retry.Backoff
	for attempt := 1; attempt <= p.d.retry.MaxAttempts; attempt++ {
		lastErr = p.d.history.Append(ctx, rec)
		if lastErr == nil {
			return nil
		}
		if attempt == p.d.retry.MaxAttempts {
			break
		}
		p.d.logger.Warn("History append failed, retrying",
			zap.String("subject_id", p.subjectID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
