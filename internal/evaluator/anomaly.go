package evaluator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/classifier"
	"wisefido-vitals-hub/internal/models"
)

// 异常检测的窗口参数：至少 5 个历史点才有意义，
// 特征均值最多取最近 10 个点（去掉刚插入的那个，即至多 9 个）
const (
	minHistoryPoints = 5
	featureWindow    = 10
)

// AnomalyEvaluator 基于模型分数的异常评估器。
// 每个信号每条已接受的读数恰好调用一次分类器
type AnomalyEvaluator struct {
	classifier classifier.Classifier
	cutoff     float64
	logger     *zap.Logger
}

// NewAnomalyEvaluator 创建异常评估器
func NewAnomalyEvaluator(c classifier.Classifier, cutoff float64, logger *zap.Logger) *AnomalyEvaluator {
	return &AnomalyEvaluator{
		classifier: c,
		cutoff:     cutoff,
		logger:     logger,
	}
}

// BuildFeatures 构建 2 维特征向量 [当前值, 此前至多 9 个点的均值]。
// history 为包含当前值的完整历史（最旧在前）；不足 2 个点时均值回退为当前值
func BuildFeatures(current float64, history []float64) []float64 {
	start := len(history) - featureWindow
	if start < 0 {
		start = 0
	}
	recent := history[start:]

	mean := current
	if len(recent) > 1 {
		preceding := recent[:len(recent)-1]
		var sum float64
		for _, v := range preceding {
			sum += v
		}
		mean = sum / float64(len(preceding))
	}

	return []float64{current, mean}
}

// Evaluate 评估单个信号的最新读数。history 是已包含该读数的历史。
// 分类器不可用或失败时记录并吞掉（按无分数处理），绝不向上传播
func (e *AnomalyEvaluator) Evaluate(ctx context.Context, deviceID string, signal models.Signal, current float64, history []float64, timestamp int64) *models.Alert {
	if current <= 0 {
		return nil
	}
	if len(history) < minHistoryPoints {
		return nil
	}

	features := BuildFeatures(current, history)

	score, err := e.classifier.Classify(ctx, signal, features)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			e.logger.Debug("Anomaly model unavailable, skipping detector",
				zap.String("signal", string(signal)),
			)
		} else {
			e.logger.Warn("Anomaly classification failed",
				zap.String("device_id", deviceID),
				zap.String("signal", string(signal)),
				zap.Error(err),
			)
		}
		return nil
	}

	if score <= e.cutoff {
		return nil
	}

	anomalyScore := score
	var source string
	switch signal {
	case models.SignalHeartRate:
		source = models.SourceBPM
	case models.SignalSpO2:
		source = models.SourceSpO2
	}

	e.logger.Info("Anomaly detected",
		zap.String("device_id", deviceID),
		zap.String("signal", string(signal)),
		zap.Float64("value", current),
		zap.Float64("score", score),
	)

	return &models.Alert{
		DeviceID:     deviceID,
		AlertType:    models.AlertTypeAnomaly,
		Source:       source,
		Value:        current,
		AnomalyScore: &anomalyScore,
		Timestamp:    timestamp,
	}
}
