package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	commondb "sinout-engine/common/database"
	commonmqtt "sinout-engine/common/mqtt"
	commonredis "sinout-engine/common/redis"
	"sinout-engine/internal/config"
	"sinout-engine/internal/consumer"
	"sinout-engine/internal/engine"
	httpapi "sinout-engine/internal/http"
	"sinout-engine/internal/notifier"
	"sinout-engine/internal/repository"
	"sinout-engine/internal/rulecache"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EngineService 情绪规则引擎服务（整合各层）
type EngineService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	rulesRepo    *repository.RulesRepository
	historyRepo  *repository.HistoryRepository
	snapshots    *rulecache.SnapshotCache
	dispatcher   *Dispatcher
	mqttClient   *commonmqtt.Client
	feedConsumer *consumer.FeedConsumer
	httpServer   *http.Server

	watchCancel context.CancelFunc
	httpErrChan chan error
}

// NewEngineService 创建引擎服务
func NewEngineService(cfg *config.Config, logger *zap.Logger) (*EngineService, error) {
	// 1. 连接数据库
	db, err := commondb.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	rulesRepo := repository.NewRulesRepository(db, logger)
	historyRepo := repository.NewHistoryRepository(db, logger)

	// 4. 创建规则引擎（冷却状态存 Redis）
	cooldown := engine.NewCooldownTracker(
		engine.NewRedisKVStore(redisClient),
		cfg.CooldownWindow(),
		cfg.Alert.CooldownKeyPrefix,
		logger,
	)
	eval := engine.NewEngine(cooldown, logger)

	// 5. 创建规则快照缓存
	snapshots := rulecache.NewSnapshotCache(
		rulesRepo,
		redisClient,
		cfg.Alert.ChangeChannel,
		cfg.SnapshotTTL(),
		cfg.SnapshotTimeout(),
		logger,
	)

	// 6. 创建报警分发
	alerts := notifier.NewNotifier(redisClient, cfg.Alert.Stream, cfg.Alert.WebhookURL, logger)

	// 7. 创建分发器
	loc, err := cfg.Location()
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	dispatcher := NewDispatcher(
		historyRepo,
		snapshots,
		eval,
		alerts,
		loc,
		cfg.Feed.QueueSize,
		AppendRetry{
			MaxAttempts: cfg.Append.MaxAttempts,
			Backoff:     time.Duration(cfg.Append.BackoffMillis) * time.Millisecond,
		},
		logger,
	)

	// 8. 连接 MQTT 并创建检测流消费者
	mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	feedConsumer := consumer.NewFeedConsumer(mqttClient, cfg.Feed.TopicPrefix, cfg.MQTT.QoS, dispatcher, logger)

	// 9. 仪表盘查询接口
	router := httpapi.NewRouter(logger)
	handler := httpapi.NewDashboardHandler(dispatcher, func() any {
		return dispatcher.Stats().Snapshot()
	}, logger)
	router.RegisterDashboardRoutes(handler)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &EngineService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		rulesRepo:    rulesRepo,
		historyRepo:  historyRepo,
		snapshots:    snapshots,
		dispatcher:   dispatcher,
		mqttClient:   mqttClient,
		feedConsumer: feedConsumer,
		httpServer:   httpServer,
		httpErrChan:  make(chan error, 1),
	}, nil
}

// Start 启动服务：规则变更订阅 → 检测流订阅 → 查询接口
// 阻塞直到 ctx 取消或 HTTP 服务异常退出
func (s *EngineService) Start(ctx context.Context) error {
	s.logger.Info("Starting emotion rule engine")

	// 规则变更通知（Redis pub/sub），断开后退避重订阅
	watchCtx, watchCancel := context.WithCancel(context.Background())
	s.watchCancel = watchCancel
	go func() {
		for {
			if err := s.snapshots.WatchChanges(watchCtx); err != nil {
				if watchCtx.Err() != nil {
					return
				}
				s.logger.Warn("Rule change watcher exited, restarting",
					zap.Error(err),
				)
			}
			select {
			case <-watchCtx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()

	if err := s.feedConsumer.Start(); err != nil {
		return fmt.Errorf("failed to start detection feed consumer: %w", err)
	}

	go func() {
		s.logger.Info("Dashboard API listening",
			zap.String("addr", s.httpServer.Addr),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.httpErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.httpErrChan:
		return fmt.Errorf("dashboard API failed: %w", err)
	}
}

// Stop 优雅停机
// 顺序：先断开检测流（不再有新读数进队列），再等分发器处理完在途事件，
// 最后关查询接口和存储连接
func (s *EngineService) Stop() {
	s.logger.Info("Stopping emotion rule engine")

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		if err := s.feedConsumer.Stop(); err != nil {
			s.logger.Warn("Failed to unsubscribe detection feed", zap.Error(err))
		}
		s.mqttClient.Disconnect()
	}

	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	if s.watchCancel != nil {
		s.watchCancel()
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Failed to shut down dashboard API", zap.Error(err))
		}
	}

	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	s.logger.Info("Emotion rule engine stopped")
}
