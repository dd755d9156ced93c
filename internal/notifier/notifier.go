package notifier

import (
	"context"
	"fmt"
	"time"

	commonredis "sinout-engine/common/redis"
	"sinout-engine/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Alert 触发消息的推送载荷
type Alert struct {
	SubjectID string    `json:"subject_id"`
	OwnerID   string    `json:"owner_id"`
	RuleID    string    `json:"rule_id"`
	Message   string    `json:"message"`
	Emotion   string    `json:"emotion"`
	Percent   float64   `json:"percent"`
	FiredAt   time.Time `json:"fired_at"`
}

// Notifier 报警分发器
// 触发消息写入 Redis Streams（前端网关消费后推送给界面），
// 配置了 webhook 时再向外部地址 POST 一份。
// 分发是尽力而为：历史记录已落库，分发失败只记日志不回滚
type Notifier struct {
	redisClient *redis.Client
	rest        *resty.Client
	stream      string
	webhookURL  string
	logger      *zap.Logger
}

// NewNotifier 创建报警分发器
func NewNotifier(redisClient *redis.Client, stream, webhookURL string, logger *zap.Logger) *Notifier {
	rest := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	return &Notifier{
		redisClient: redisClient,
		rest:        rest,
		stream:      stream,
		webhookURL:  webhookURL,
		logger:      logger,
	}
}

// NotifyFired 分发一条已触发的报警
func (n *Notifier) NotifyFired(ctx context.Context, det *models.Detection, match *models.MatchResult) error {
	alert := Alert{
		SubjectID: det.SubjectID,
		OwnerID:   det.OwnerID,
		RuleID:    match.RuleID,
		Message:   match.Message,
		Emotion:   det.DominantEmotion,
		Percent:   det.DominantPercent,
		FiredAt:   det.Timestamp,
	}

	if _, err := commonredis.PublishJSONToStream(ctx, n.redisClient, n.stream, alert); err != nil {
		return fmt.Errorf("failed to publish alert to stream: %w", err)
	}

	if n.webhookURL != "" {
		resp, err := n.rest.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(alert).
			Post(n.webhookURL)
		if err != nil {
			return fmt.Errorf("failed to post alert webhook: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
		}
	}

	n.logger.Debug("Alert dispatched",
		zap.String("subject_id", alert.SubjectID),
		zap.String("rule_id", alert.RuleID),
	)

	return nil
}
