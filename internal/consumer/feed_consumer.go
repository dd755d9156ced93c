package consumer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sinout-engine/internal/models"

	commonmqtt "sinout-engine/common/mqtt"

	"go.uber.org/zap"
)

// Sink 接收规范化前的读数（由 service.Dispatcher 实现）
type Sink interface {
	Enqueue(reading models.Reading) bool
}

// feedMessage 分类器上报的消息格式
type feedMessage struct {
	OwnerID          string             `json:"owner_id"`
	Timestamp        int64              `json:"timestamp"` // unix 毫秒
	Scores           map[string]float64 `json:"scores"`
	MonitoringPaused bool               `json:"monitoring_paused"`
}

// FeedConsumer 订阅分类器检测流并投递到分发器
// 主题格式：<prefix><subjectID>，对象ID取自主题而非消息体
type FeedConsumer struct {
	client      *commonmqtt.Client
	topicPrefix string
	qos         byte
	sink        Sink
	logger      *zap.Logger
}

// NewFeedConsumer 创建检测流消费者
func NewFeedConsumer(client *commonmqtt.Client, topicPrefix string, qos byte, sink Sink, logger *zap.Logger) *FeedConsumer {
	return &FeedConsumer{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		sink:        sink,
		logger:      logger,
	}
}

// Start 订阅所有对象的检测主题
func (c *FeedConsumer) Start() error {
	topic := c.topicPrefix + "+"
	if err := c.client.Subscribe(topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to detection feed: %w", err)
	}

	c.logger.Info("Subscribed to detection feed", zap.String("topic", topic))
	return nil
}

// Stop 取消订阅
func (c *FeedConsumer) Stop() error {
	return c.client.Unsubscribe(c.topicPrefix + "+")
}

// handleMessage 解析一条检测消息并投递
func (c *FeedConsumer) handleMessage(topic string, payload []byte) error {
	subjectID := strings.TrimPrefix(topic, c.topicPrefix)
	if subjectID == "" || subjectID == topic || strings.Contains(subjectID, "/") {
		return fmt.Errorf("unexpected detection topic: %s", topic)
	}

	var msg feedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to parse detection message: %w", err)
	}

	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}

	reading := models.Reading{
		SubjectID:        subjectID,
		OwnerID:          msg.OwnerID,
		Timestamp:        ts,
		Scores:           msg.Scores,
		MonitoringPaused: msg.MonitoringPaused,
	}

	if !c.sink.Enqueue(reading) {
		c.logger.Warn("Reading not accepted by dispatcher",
			zap.String("subject_id", subjectID),
		)
	}

	return nil
}
