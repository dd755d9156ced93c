package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// CooldownTracker 冷却状态管理器
// 以 (subject_id, rule_id) 为键记录最近一次触发时间，防止同一规则在冷却窗口内重复触发。
// 状态存放在 Redis 中并以冷却窗口作为 TTL：过期即自然失效，不需要显式清理，
// 进程重启后冷却状态也不会丢失
type CooldownTracker struct {
	kv        KVStore
	window    time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewCooldownTracker 创建冷却状态管理器
func NewCooldownTracker(kv KVStore, window time.Duration, keyPrefix string, logger *zap.Logger) *CooldownTracker {
	return &CooldownTracker{
		kv:        kv,
		window:    window,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Window 返回冷却窗口时长
func (t *CooldownTracker) Window() time.Duration {
	return t.window
}

// stateKey 构建冷却状态键
func (t *CooldownTracker) stateKey(subjectID, ruleID string) string {
	return fmt.Sprintf("%s%s:%s", t.keyPrefix, subjectID, ruleID)
}

// InCooldown 判断 (subject, rule) 是否处于冷却期
// 过期判断完全依赖键的 TTL，查询即惰性求值
func (t *CooldownTracker) InCooldown(ctx context.Context, subjectID, ruleID string) (bool, error) {
	_, err := t.kv.Get(ctx, t.stateKey(subjectID, ruleID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cooldown state: %w", err)
	}
	return true, nil
}

// LastFiredAt 读取最近一次触发时间（仅用于诊断）
func (t *CooldownTracker) LastFiredAt(ctx context.Context, subjectID, ruleID string) (time.Time, error) {
	val, err := t.kv.Get(ctx, t.stateKey(subjectID, ruleID))
	if err != nil {
		return time.Time{}, err
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cooldown state: %w", err)
	}
	return time.UnixMilli(millis), nil
}

// MarkFired 记录一次触发并开启冷却窗口
func (t *CooldownTracker) MarkFired(ctx context.Context, subjectID, ruleID string, firedAt time.Time) error {
	key := t.stateKey(subjectID, ruleID)
	value := strconv.FormatInt(firedAt.UnixMilli(), 10)
	if err := t.kv.Set(ctx, key, value, t.window); err != nil {
		return fmt.Errorf("failed to set cooldown state: %w", err)
	}

	t.logger.Debug("Cooldown started",
		zap.String("subject_id", subjectID),
		zap.String("rule_id", ruleID),
		zap.Duration("window", t.window),
	)

	return nil
}
