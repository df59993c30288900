package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/models"
	"wisefido-vitals-hub/internal/mqtt"
	"wisefido-vitals-hub/internal/store"
)

// Subscriber 入站 MQTT 订阅能力（mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// AlertArchiver 设备端报警与图片元数据的归档（repository 实现）
type AlertArchiver interface {
	AppendAlert(ctx context.Context, alert models.Alert) error
	AppendImageMeta(ctx context.Context, meta models.ImageMetaMessage) error
}

// Consumer 入站消息消费器：订阅四个主题，解析后分流。
// 生命体征走任务队列异步处理；设备端报警和图片元数据直接落存储。
// 解析失败的消息记录后丢弃，消费循环永不因坏消息中断
type Consumer struct {
	cfg        *config.Config
	subscriber Subscriber
	queue      *dispatcher.Queue
	store      *store.Store
	archive    AlertArchiver
	logger     *zap.Logger
	now        func() time.Time
}

// NewConsumer 创建入站消费器
func NewConsumer(
	cfg *config.Config,
	subscriber Subscriber,
	queue *dispatcher.Queue,
	deviceStore *store.Store,
	archive AlertArchiver,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		cfg:        cfg,
		subscriber: subscriber,
		queue:      queue,
		store:      deviceStore,
		archive:    archive,
		logger:     logger,
		now:        time.Now,
	}
}

// Start 订阅全部入站主题
func (c *Consumer) Start(ctx context.Context) error {
	subscriptions := []struct {
		topic   string
		handler func(topic string, payload []byte) error
	}{
		{c.cfg.Topics.Vitals, func(topic string, payload []byte) error {
			return c.handleVitals(ctx, topic, payload)
		}},
		{c.cfg.Topics.Parameters, func(topic string, payload []byte) error {
			return c.handleVitals(ctx, topic, payload)
		}},
		{c.cfg.Topics.Alerts, func(topic string, payload []byte) error {
			return c.handleDeviceAlert(ctx, topic, payload)
		}},
		{c.cfg.Topics.ImageMetadata, func(topic string, payload []byte) error {
			return c.handleImageMeta(ctx, topic, payload)
		}},
	}

	for _, sub := range subscriptions {
		if err := c.subscriber.Subscribe(sub.topic, 1, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
		c.logger.Info("Subscribed to topic", zap.String("topic", sub.topic))
	}

	return nil
}

// Stop 取消全部订阅
func (c *Consumer) Stop() {
	topics := []string{
		c.cfg.Topics.Vitals,
		c.cfg.Topics.Parameters,
		c.cfg.Topics.Alerts,
		c.cfg.Topics.ImageMetadata,
	}
	if err := c.subscriber.Unsubscribe(topics...); err != nil {
		c.logger.Warn("Failed to unsubscribe", zap.Error(err))
	}
}

// deviceIDFrom 消息体里的 device_id 优先；缺失时尝试主题最后一段，
// 仍然拿不到就归到 unknown
func deviceIDFrom(payloadID, topic string) string {
	if payloadID != "" {
		return payloadID
	}
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1]
	}
	return "unknown"
}

// handleVitals 生命体征消息入队，真正的处理在 worker 里完成
func (c *Consumer) handleVitals(_ context.Context, topic string, payload []byte) error {
	var msg models.VitalsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed vitals message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}
	msg.DeviceID = deviceIDFrom(msg.DeviceID, topic)
	if msg.Timestamp == 0 {
		msg.Timestamp = c.now().UnixMilli()
	}

	c.queue.Enqueue(dispatcher.Task{
		Type:       dispatcher.TaskVitals,
		DeviceID:   msg.DeviceID,
		Vitals:     &msg,
		IngestedAt: c.now().UnixMilli(),
	})
	return nil
}

// handleDeviceAlert 设备端自行判定的报警：不经过检测流水线，
// 直接写内存历史并归档
func (c *Consumer) handleDeviceAlert(ctx context.Context, topic string, payload []byte) error {
	var msg models.DeviceAlertMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed device alert",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}
	msg.DeviceID = deviceIDFrom(msg.DeviceID, topic)
	if msg.Timestamp == 0 {
		msg.Timestamp = c.now().UnixMilli()
	}

	alert := models.Alert{
		AlertID:   uuid.New().String(),
		DeviceID:  msg.DeviceID,
		AlertType: msg.AlertType,
		Source:    msg.Source,
		Timestamp: msg.Timestamp,
	}
	if msg.Value != nil {
		alert.Value = *msg.Value
	}

	c.store.RecordAlert(alert.DeviceID, alert)
	if err := c.archive.AppendAlert(ctx, alert); err != nil {
		c.logger.Error("Failed to archive device alert",
			zap.String("device_id", alert.DeviceID),
			zap.Error(err),
		)
	}

	c.logger.Info("Device alert recorded",
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_type", alert.AlertType),
	)
	return nil
}

// handleImageMeta 图片元数据：写内存历史并归档
func (c *Consumer) handleImageMeta(ctx context.Context, topic string, payload []byte) error {
	var msg models.ImageMetaMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed image metadata",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}
	msg.DeviceID = deviceIDFrom(msg.DeviceID, topic)
	if msg.Timestamp == 0 {
		msg.Timestamp = c.now().UnixMilli()
	}

	c.store.RecordImageMeta(msg.DeviceID, msg)
	if err := c.archive.AppendImageMeta(ctx, msg); err != nil {
		c.logger.Error("Failed to archive image metadata",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
	}
	return nil
}
