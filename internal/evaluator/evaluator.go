package evaluator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/cache"
	"wisefido-vitals-hub/internal/classifier"
	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/models"
	"wisefido-vitals-hub/internal/repository"
	"wisefido-vitals-hub/internal/store"
)

// AlertSender 报警出口（alert.Dispatcher 实现）
type AlertSender interface {
	Send(ctx context.Context, alert models.Alert) models.Alert
}

// Archive 持久归档（repository.ArchiveRepository 实现）
type Archive interface {
	AppendVitals(ctx context.Context, v models.VitalsMessage) error
	CreateAudioRecord(ctx context.Context, deviceID, filepath string, timestamp int64) (string, error)
	UpdateAudioOutcome(ctx context.Context, recordID string, outcome repository.AudioOutcome) error
}

// Evaluator 任务处理核心：消费生命体征和音频任务，
// 依次执行 存储→阈值检测→异常检测→归档→缓存刷新（体征）
// 或 归档→关键词识别→结果回写（音频）
type Evaluator struct {
	cfg     *config.Config
	store   *store.Store
	archive Archive
	cache   *cache.Manager
	alerts  AlertSender
	anomaly *AnomalyEvaluator
	keyword *KeywordEvaluator
	logger  *zap.Logger
}

// NewEvaluator 创建任务评估器
func NewEvaluator(
	cfg *config.Config,
	deviceStore *store.Store,
	archive Archive,
	cacheManager *cache.Manager,
	alerts AlertSender,
	c classifier.Classifier,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		store:   deviceStore,
		archive: archive,
		cache:   cacheManager,
		alerts:  alerts,
		anomaly: NewAnomalyEvaluator(c, cfg.Detection.AnomalyCutoff, logger),
		keyword: NewKeywordEvaluator(c, cfg.Detection.KeywordCutoff, cfg.Detection.Keywords, logger),
		logger:  logger,
	}
}

// HandleVitals 处理一条生命体征任务
func (e *Evaluator) HandleVitals(ctx context.Context, task dispatcher.Task) error {
	if task.Vitals == nil {
		return fmt.Errorf("vitals task without payload: device %s", task.DeviceID)
	}
	msg := task.Vitals

	// 两个读数都无效的消息整条拒绝，不进历史也不触发检测
	if msg.HeartRate <= 0 && msg.SpO2 <= 0 {
		e.logger.Warn("Rejecting vitals with no positive readings",
			zap.String("device_id", msg.DeviceID),
			zap.Float64("heart_rate", msg.HeartRate),
			zap.Float64("spo2", msg.SpO2),
		)
		return nil
	}

	// 1. 写内存历史（有效的读数各自追加）
	e.store.RecordVitals(msg.DeviceID, msg.HeartRate, msg.SpO2)

	// 2. 阈值检测
	for _, a := range EvaluateThresholds(msg.HeartRate, msg.SpO2, msg.Timestamp, e.cfg.Thresholds) {
		a.DeviceID = msg.DeviceID
		e.alerts.Send(ctx, a)
	}

	// 3. 异常检测（每个信号独立评估，历史已含当前读数）
	if msg.HeartRate > 0 {
		history := e.store.VitalsHistory(msg.DeviceID, models.SignalHeartRate)
		if a := e.anomaly.Evaluate(ctx, msg.DeviceID, models.SignalHeartRate, msg.HeartRate, history, msg.Timestamp); a != nil {
			e.alerts.Send(ctx, *a)
		}
	}
	if msg.SpO2 > 0 {
		history := e.store.VitalsHistory(msg.DeviceID, models.SignalSpO2)
		if a := e.anomaly.Evaluate(ctx, msg.DeviceID, models.SignalSpO2, msg.SpO2, history, msg.Timestamp); a != nil {
			e.alerts.Send(ctx, *a)
		}
	}

	// 4. 持久归档。失败只记录，不影响已完成的检测
	if err := e.archive.AppendVitals(ctx, *msg); err != nil {
		e.logger.Error("Failed to archive vitals",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
	}

	// 5. 刷新实时缓存
	realtime := &models.RealtimeVitals{
		DeviceID:  msg.DeviceID,
		Timestamp: msg.Timestamp,
	}
	if msg.HeartRate > 0 {
		hr := msg.HeartRate
		realtime.HeartRate = &hr
	}
	if msg.SpO2 > 0 {
		spo2 := msg.SpO2
		realtime.SpO2 = &spo2
	}
	if err := e.cache.UpdateRealtime(ctx, realtime); err != nil {
		e.logger.Error("Failed to update realtime cache",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
	}

	return nil
}

// HandleAudio 处理一条音频任务。归档分两阶段：先落一条 processed=false 的
// 接收记录，识别完成后把结果合并回去；识别失败时记录保持未处理状态
func (e *Evaluator) HandleAudio(ctx context.Context, task dispatcher.Task) error {
	if task.Audio == nil {
		return fmt.Errorf("audio task without payload: device %s", task.DeviceID)
	}
	audio := task.Audio

	recordID, err := e.archive.CreateAudioRecord(ctx, task.DeviceID, audio.Filepath, task.IngestedAt)
	if err != nil {
		e.logger.Error("Failed to create audio record",
			zap.String("device_id", task.DeviceID),
			zap.Error(err),
		)
	}

	result, a, err := e.keyword.Evaluate(ctx, task.DeviceID, audio.Samples, audio.Filepath, task.IngestedAt)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			e.logger.Debug("Keyword model unavailable, audio left unprocessed",
				zap.String("device_id", task.DeviceID),
			)
		} else {
			e.logger.Warn("Keyword classification failed, audio left unprocessed",
				zap.String("device_id", task.DeviceID),
				zap.Error(err),
			)
		}
		return nil
	}

	if a != nil {
		a.DeviceID = task.DeviceID
		e.alerts.Send(ctx, *a)
	}

	if recordID != "" {
		outcome := repository.AudioOutcome{
			KeywordDetected: result.Detected,
			Keyword:         result.Keyword,
			Confidence:      result.Confidence,
		}
		if err := e.archive.UpdateAudioOutcome(ctx, recordID, outcome); err != nil {
			e.logger.Error("Failed to update audio record",
				zap.String("device_id", task.DeviceID),
				zap.String("record_id", recordID),
				zap.Error(err),
			)
		}
	}

	return nil
}
