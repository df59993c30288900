package store

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

// ErrDeviceNotFound 查询的设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// deviceRecord 单个设备的有界历史和元数据。只由 Store 持有，
// 外部只能通过 Snapshot 拿到只读副本
type deviceRecord struct {
	heartRate    *History[float64]
	spo2         *History[float64]
	alerts       *History[models.Alert]
	images       *History[models.ImageMetaMessage]
	lastActivity time.Time
}

// DeviceSnapshot 设备状态的只读视图（供查询接口使用）
type DeviceSnapshot struct {
	DeviceID     string
	LastActivity time.Time
	HeartRate    []float64
	SpO2         []float64
	Alerts       []models.Alert
	Images       []models.ImageMetaMessage
}

// Store 设备状态存储。唯一的共享可变资源，所有修改方法内部加锁，
// 锁内不做任何 I/O
type Store struct {
	mu      sync.RWMutex
	devices map[string]*deviceRecord

	vitalsCapacity int
	alertCapacity  int
	imageCapacity  int

	logger *zap.Logger
	now    func() time.Time // 便于测试注入
}

// NewStore 创建设备状态存储
func NewStore(cfg *config.Config, logger *zap.Logger) *Store {
	return &Store{
		devices:        make(map[string]*deviceRecord),
		vitalsCapacity: cfg.History.VitalsCapacity,
		alertCapacity:  cfg.History.AlertCapacity,
		imageCapacity:  cfg.History.ImageCapacity,
		logger:         logger,
		now:            time.Now,
	}
}

// getOrCreateLocked 设备记录的唯一创建点，调用方必须已持有写锁
func (s *Store) getOrCreateLocked(deviceID string) *deviceRecord {
	rec, ok := s.devices[deviceID]
	if !ok {
		rec = &deviceRecord{
			heartRate:    NewHistory[float64](s.vitalsCapacity),
			spo2:         NewHistory[float64](s.vitalsCapacity),
			alerts:       NewHistory[models.Alert](s.alertCapacity),
			images:       NewHistory[models.ImageMetaMessage](s.imageCapacity),
			lastActivity: s.now(),
		}
		s.devices[deviceID] = rec
		s.logger.Debug("Created device record", zap.String("device_id", deviceID))
	}
	return rec
}

// GetOrCreate 确保设备记录存在（首条消息到达时创建）
func (s *Store) GetOrCreate(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(deviceID)
}

// RecordVitals 追加生命体征读数并刷新活跃时间。
// 非正值视为该信号缺失，不入历史；两个信号都无效的读数由调用方拒绝
func (s *Store) RecordVitals(deviceID string, heartRate, spo2 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(deviceID)
	if heartRate > 0 {
		rec.heartRate.Append(heartRate)
	}
	if spo2 > 0 {
		rec.spo2.Append(spo2)
	}
	rec.lastActivity = s.now()
}

// RecordAlert 追加报警历史并刷新活跃时间
func (s *Store) RecordAlert(deviceID string, alert models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(deviceID)
	rec.alerts.Append(alert)
	rec.lastActivity = s.now()
}

// RecordImageMeta 追加图片元数据历史并刷新活跃时间
func (s *Store) RecordImageMeta(deviceID string, meta models.ImageMetaMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(deviceID)
	rec.images.Append(meta)
	rec.lastActivity = s.now()
}

// VitalsHistory 返回指定信号的历史副本（最旧在前）。设备不存在时返回 nil
func (s *Store) VitalsHistory(deviceID string, signal models.Signal) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	switch signal {
	case models.SignalHeartRate:
		return rec.heartRate.Values()
	case models.SignalSpO2:
		return rec.spo2.Values()
	}
	return nil
}

// Snapshot 返回设备状态的只读副本
func (s *Store) Snapshot(deviceID string) (*DeviceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return &DeviceSnapshot{
		DeviceID:     deviceID,
		LastActivity: rec.lastActivity,
		HeartRate:    rec.heartRate.Values(),
		SpO2:         rec.spo2.Values(),
		Alerts:       rec.alerts.Values(),
		Images:       rec.images.Values(),
	}, nil
}

// Remove 删除设备记录
func (s *Store) Remove(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
}

// DeviceCount 当前设备数
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// EvictStale 删除 lastActivity 早于 staleness 窗口的设备，返回删除的设备 ID
func (s *Store) EvictStale(staleness time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed []string
	for deviceID, rec := range s.devices {
		if now.Sub(rec.lastActivity) > staleness {
			delete(s.devices, deviceID)
			removed = append(removed, deviceID)
		}
	}
	return removed
}
