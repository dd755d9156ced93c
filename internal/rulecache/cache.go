package rulecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sinout-engine/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrSnapshotUnavailable 规则快照不可用（拉取失败且没有可退化使用的缓存）
var ErrSnapshotUnavailable = errors.New("rule snapshot unavailable")

// RulesSource 规则数据源（由 repository.RulesRepository 实现）
type RulesSource interface {
	FetchActiveRules(ctx context.Context, ownerID string) ([]models.Rule, error)
}

// snapshot 某个看护人的规则快照（取回后视为不可变，可在多个对象管道间共享）
type snapshot struct {
	rules     []models.Rule
	fetchedAt time.Time
}

// SnapshotCache 按看护人缓存的规则快照
// 拉取超时或失败时退化使用上一次成功的快照（宁可用旧规则也不阻塞管道）；
// 外部管理端改动规则后通过 Redis 发布变更通知，这里订阅后使对应缓存失效
type SnapshotCache struct {
	source       RulesSource
	redisClient  *redis.Client
	channel      string
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	snapshots map[string]*snapshot
	nowFn     func() time.Time
}

// NewSnapshotCache 创建规则快照缓存
func NewSnapshotCache(
	source RulesSource,
	redisClient *redis.Client,
	channel string,
	ttl time.Duration,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *SnapshotCache {
	return &SnapshotCache{
		source:       source,
		redisClient:  redisClient,
		channel:      channel,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		snapshots:    make(map[string]*snapshot),
		nowFn:        time.Now,
	}
}

// Get 获取某个看护人的当前规则快照
// 返回的切片是共享的只读快照，调用方不得修改
func (c *SnapshotCache) Get(ctx context.Context, ownerID string) ([]models.Rule, error) {
	c.mu.Lock()
	cached, ok := c.snapshots[ownerID]
	if ok && c.nowFn().Sub(cached.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return cached.rules, nil
	}
	c.mu.Unlock()

	// 缓存不存在或已过期：带超时拉取
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	rules, err := c.source.FetchActiveRules(fetchCtx, ownerID)
	if err != nil {
		if ok {
			// 退化使用旧快照
			c.logger.Warn("Rule fetch failed, using stale snapshot",
				zap.String("owner_id", ownerID),
				zap.Time("fetched_at", cached.fetchedAt),
				zap.Error(err),
			)
			return cached.rules, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	c.mu.Lock()
	c.snapshots[ownerID] = &snapshot{
		rules:     rules,
		fetchedAt: c.nowFn(),
	}
	c.mu.Unlock()

	c.logger.Debug("Rule snapshot refreshed",
		zap.String("owner_id", ownerID),
		zap.Int("rule_count", len(rules)),
	)

	return rules, nil
}

// Invalidate 使某个看护人的快照失效（下次 Get 重新拉取）
func (c *SnapshotCache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, ownerID)
}

// WatchChanges 订阅规则变更通知，消息内容为 owner_id（阻塞直到 ctx 取消）
func (c *SnapshotCache) WatchChanges(ctx context.Context) error {
	pubsub := c.redisClient.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	c.logger.Info("Watching rule changes",
		zap.String("channel", c.channel),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.Invalidate(msg.Payload)
			c.logger.Info("Rule snapshot invalidated",
				zap.String("owner_id", msg.Payload),
			)
		}
	}
}
