package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

// Manager Redis 缓存管理器。缓存只是派生数据（供外部看板读取），
// 写入失败记录后吞掉，权威状态始终在内存 Store 里
type Manager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
	ttl         time.Duration
}

// NewManager 创建缓存管理器
func NewManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		ttl:         time.Duration(cfg.Cache.TTLSec) * time.Second,
	}
}

// realtimeKey 实时数据缓存键
func (m *Manager) realtimeKey(deviceID string) string {
	return fmt.Sprintf("%s%s%s",
		m.config.Cache.RealtimeKeyPrefix,
		deviceID,
		m.config.Cache.RealtimeSuffix,
	)
}

// alertKey 报警缓存键
func (m *Manager) alertKey(deviceID string) string {
	return fmt.Sprintf("%s%s%s",
		m.config.Cache.AlertKeyPrefix,
		deviceID,
		m.config.Cache.AlertSuffix,
	)
}

// UpdateRealtime 更新设备最新生命体征快照
func (m *Manager) UpdateRealtime(ctx context.Context, data *models.RealtimeVitals) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime data: %w", err)
	}

	key := m.realtimeKey(data.DeviceID)
	if err := m.redisClient.Set(ctx, key, jsonData, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set realtime cache: %w", err)
	}

	return nil
}

// GetRealtime 读取设备最新生命体征快照
func (m *Manager) GetRealtime(ctx context.Context, deviceID string) (*models.RealtimeVitals, error) {
	val, err := m.redisClient.Get(ctx, m.realtimeKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("realtime data not found for device: %s", deviceID)
		}
		return nil, fmt.Errorf("failed to get realtime cache: %w", err)
	}

	var data models.RealtimeVitals
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal realtime data: %w", err)
	}
	return &data, nil
}

// UpdateAlerts 更新设备的近期报警缓存
func (m *Manager) UpdateAlerts(ctx context.Context, deviceID string, alerts []models.Alert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	key := m.alertKey(deviceID)
	if err := m.redisClient.Set(ctx, key, jsonData, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	m.logger.Debug("Updated alert cache",
		zap.String("device_id", deviceID),
		zap.String("key", key),
		zap.Int("alert_count", len(alerts)),
	)
	return nil
}
