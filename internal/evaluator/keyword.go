package evaluator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/classifier"
	"wisefido-vitals-hub/internal/models"
)

// fallbackKeywords 关键词配置之外始终触发报警的标签
var fallbackKeywords = []string{"help", "ouch"}

// KeywordResult 一次音频评估的结果
type KeywordResult struct {
	Detected   bool
	Keyword    string
	Confidence float64
}

// KeywordEvaluator 音频关键词评估器
type KeywordEvaluator struct {
	classifier classifier.Classifier
	cutoff     float64
	keywords   []string
	logger     *zap.Logger
}

// NewKeywordEvaluator 创建关键词评估器
func NewKeywordEvaluator(c classifier.Classifier, cutoff float64, keywords []string, logger *zap.Logger) *KeywordEvaluator {
	return &KeywordEvaluator{
		classifier: c,
		cutoff:     cutoff,
		keywords:   keywords,
		logger:     logger,
	}
}

// NormalizePCM 把 16-bit PCM 采样归一化到 [-1,1] 的浮点
func NormalizePCM(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// matchKeyword 大小写不敏感的子串匹配：配置的关键词是检测标签的子串即命中；
// 标签本身属于回退集合时也命中
func (e *KeywordEvaluator) matchKeyword(label string) (string, bool) {
	lower := strings.ToLower(label)
	for _, kw := range e.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	for _, kw := range fallbackKeywords {
		if lower == kw {
			return kw, true
		}
	}
	return "", false
}

// Evaluate 对一段音频做一次关键词识别。
// 返回的 error 仅表示分类器不可用/失败（调用方记录后按未处理对待）；
// 识别到关键词且超过置信度阈值时返回报警
func (e *KeywordEvaluator) Evaluate(ctx context.Context, deviceID string, samples []int16, filepath string, timestamp int64) (KeywordResult, *models.Alert, error) {
	normalized := NormalizePCM(samples)

	labels, err := e.classifier.ClassifyAudio(ctx, normalized)
	if err != nil {
		return KeywordResult{}, nil, err
	}

	// 取置信度最高的标签
	var bestLabel string
	var bestConfidence float64
	for label, confidence := range labels {
		if confidence > bestConfidence {
			bestConfidence = confidence
			bestLabel = label
		}
	}

	if bestConfidence <= e.cutoff {
		return KeywordResult{}, nil, nil
	}

	keyword, matched := e.matchKeyword(bestLabel)
	if !matched {
		return KeywordResult{}, nil, nil
	}

	e.logger.Info("Keyword detected",
		zap.String("device_id", deviceID),
		zap.String("keyword", keyword),
		zap.Float64("confidence", bestConfidence),
	)

	confidence := bestConfidence
	result := KeywordResult{
		Detected:   true,
		Keyword:    keyword,
		Confidence: bestConfidence,
	}
	alert := &models.Alert{
		DeviceID:      deviceID,
		AlertType:     models.AlertTypeKeyword,
		Source:        models.SourceKeyword,
		Keyword:       keyword,
		Confidence:    &confidence,
		AudioFilepath: filepath,
		Timestamp:     timestamp,
	}
	return result, alert, nil
}
