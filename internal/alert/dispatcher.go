package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/cache"
	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
	"wisefido-vitals-hub/internal/store"
)

// Publisher 出站报警通道（MQTT 客户端实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Archiver 报警归档（repository 实现）
type Archiver interface {
	AppendAlert(ctx context.Context, alert models.Alert) error
}

// Dispatcher 报警分发器。发布、归档、写内存历史、刷新缓存四个动作
// 全部尝试；发布/归档/缓存失败只记录，绝不回滚内存历史（尽力而为，非事务）
type Dispatcher struct {
	publisher Publisher
	topic     string
	archive   Archiver
	store     *store.Store
	cache     *cache.Manager
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher 创建报警分发器
func NewDispatcher(
	cfg *config.Config,
	publisher Publisher,
	archive Archiver,
	deviceStore *store.Store,
	cacheManager *cache.Manager,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		topic:     cfg.Topics.DetectedAnomalies,
		archive:   archive,
		store:     deviceStore,
		cache:     cacheManager,
		logger:    logger,
		now:       time.Now,
	}
}

// Send 分发一条报警。缺失的 AlertID/Timestamp 在此补齐，之后报警不再变更
func (d *Dispatcher) Send(ctx context.Context, alert models.Alert) models.Alert {
	if alert.AlertID == "" {
		alert.AlertID = uuid.New().String()
	}
	if alert.Timestamp == 0 {
		alert.Timestamp = d.now().UnixMilli()
	}

	// 1. 发布到出站报警主题
	if payload, err := json.Marshal(alert); err != nil {
		d.logger.Error("Failed to marshal alert", zap.Error(err))
	} else if err := d.publisher.Publish(d.topic, 1, false, payload); err != nil {
		d.logger.Error("Failed to publish alert",
			zap.String("alert_id", alert.AlertID),
			zap.String("device_id", alert.DeviceID),
			zap.Error(err),
		)
	}

	// 2. 写入持久归档
	if err := d.archive.AppendAlert(ctx, alert); err != nil {
		d.logger.Error("Failed to archive alert",
			zap.String("alert_id", alert.AlertID),
			zap.String("device_id", alert.DeviceID),
			zap.Error(err),
		)
	}

	// 3. 追加内存报警历史
	d.store.RecordAlert(alert.DeviceID, alert)

	// 4. 刷新报警缓存
	if snap, err := d.store.Snapshot(alert.DeviceID); err == nil {
		if err := d.cache.UpdateAlerts(ctx, alert.DeviceID, snap.Alerts); err != nil {
			d.logger.Error("Failed to update alert cache",
				zap.String("device_id", alert.DeviceID),
				zap.Error(err),
			)
		}
	}

	d.logger.Info("Alert sent",
		zap.String("alert_id", alert.AlertID),
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_type", alert.AlertType),
		zap.String("source", alert.Source),
		zap.Float64("value", alert.Value),
	)

	return alert
}
