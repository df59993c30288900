package classifier

import (
	"context"
	"errors"

	"wisefido-vitals-hub/internal/models"
)

// ErrModelUnavailable 模型未部署或未加载成功。调用方跳过对应检测器，
// 不视为致命错误
var ErrModelUnavailable = errors.New("model not available")

// Classifier 异常/关键词分类能力的统一接口。
// Classify 返回 [0,1] 的异常分数；ClassifyAudio 返回标签到置信度的映射。
// 实现对流水线而言是无状态的，模型加载卸载是外部生命周期问题
type Classifier interface {
	Classify(ctx context.Context, signal models.Signal, features []float64) (float64, error)
	ClassifyAudio(ctx context.Context, samples []float32) (map[string]float64, error)
}
