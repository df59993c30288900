package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
)

// Sweeper 定期清理不活跃设备。全量扫描，设备数量级内可接受
type Sweeper struct {
	store     *Store
	interval  time.Duration
	staleness time.Duration
	logger    *zap.Logger
}

// NewSweeper 创建清理器
func NewSweeper(cfg *config.Config, store *Store, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  time.Duration(cfg.Cleanup.SweepIntervalSec) * time.Second,
		staleness: time.Duration(cfg.Cleanup.StalenessWindowSec) * time.Second,
		logger:    logger,
	}
}

// Start 启动清理循环，ctx 取消后在一个周期内退出
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Eviction sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("staleness_window", s.staleness),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Eviction sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep 执行一次清理；出错只记录，下个周期继续
func (s *Sweeper) sweep() {
	removed := s.store.EvictStale(s.staleness)
	for _, deviceID := range removed {
		s.logger.Info("Removed inactive device", zap.String("device_id", deviceID))
	}
	if len(removed) > 0 {
		s.logger.Debug("Sweep finished",
			zap.Int("removed_count", len(removed)),
			zap.Int("remaining_devices", s.store.DeviceCount()),
		)
	}
}
