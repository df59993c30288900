package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

// 模型名称（与运行器部署一一对应）
const (
	modelBPM     = "bpm_model"
	modelSpO2    = "spo2_model"
	modelKeyword = "keyword_model"
)

// classifyRequest 模型运行器请求
type classifyRequest struct {
	Features []float64 `json:"features,omitempty"`
	Samples  []float32 `json:"samples,omitempty"`
}

// classifyResponse 模型运行器响应（兼容两种输出格式：
// 直接的 anomaly 分数，或 classification 映射里的 anomaly 项）
type classifyResponse struct {
	Result struct {
		Anomaly        *float64           `json:"anomaly,omitempty"`
		Classification map[string]float64 `json:"classification,omitempty"`
	} `json:"result"`
}

// RunnerClient 通过 HTTP 调用模型运行器的分类器实现。
// 每个模型一个独立的运行器端点；端点未配置视为模型未部署。
// 每次调用带超时，避免慢模型拖垮 worker
type RunnerClient struct {
	httpClient *resty.Client
	endpoints  map[string]string // 模型名 -> 运行器基础 URL
	logger     *zap.Logger

	mu        sync.RWMutex
	available map[string]bool
}

// NewRunnerClient 创建模型运行器客户端
func NewRunnerClient(cfg *config.Config, logger *zap.Logger) *RunnerClient {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Classifier.TimeoutSec) * time.Second).
		SetRetryCount(1).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	endpoints := map[string]string{}
	if cfg.Classifier.BPMEndpoint != "" {
		endpoints[modelBPM] = cfg.Classifier.BPMEndpoint
	}
	if cfg.Classifier.SpO2Endpoint != "" {
		endpoints[modelSpO2] = cfg.Classifier.SpO2Endpoint
	}
	if cfg.Classifier.KeywordEndpoint != "" {
		endpoints[modelKeyword] = cfg.Classifier.KeywordEndpoint
	}

	return &RunnerClient{
		httpClient: client,
		endpoints:  endpoints,
		logger:     logger,
		available:  make(map[string]bool),
	}
}

// Load 启动时探测各模型运行器。探测失败只降级（对应检测器跳过），
// 不阻止服务启动
func (c *RunnerClient) Load(ctx context.Context) {
	c.logger.Info("Probing model runners", zap.Int("configured", len(c.endpoints)))

	for name, endpoint := range c.endpoints {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			Get(endpoint + "/health")
		if err != nil || resp.IsError() {
			c.logger.Warn("Model runner not reachable, detector disabled",
				zap.String("model", name),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			continue
		}

		c.mu.Lock()
		c.available[name] = true
		c.mu.Unlock()
		c.logger.Info("Model runner loaded",
			zap.String("model", name),
			zap.String("endpoint", endpoint),
		)
	}
}

// Close 关闭客户端，标记所有模型不可用
func (c *RunnerClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.available {
		delete(c.available, name)
	}
	c.logger.Info("Model runners unloaded")
}

// LoadedModels 已加载的模型名列表（健康检查接口使用）
func (c *RunnerClient) LoadedModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.available))
	for name, ok := range c.available {
		if ok {
			names = append(names, name)
		}
	}
	return names
}

// Classify 调用信号对应的模型，返回 [0,1] 的异常分数
func (c *RunnerClient) Classify(ctx context.Context, signal models.Signal, features []float64) (float64, error) {
	var name string
	switch signal {
	case models.SignalHeartRate:
		name = modelBPM
	case models.SignalSpO2:
		name = modelSpO2
	default:
		return 0, fmt.Errorf("unknown signal: %s", signal)
	}

	result, err := c.invoke(ctx, name, classifyRequest{Features: features})
	if err != nil {
		return 0, err
	}

	// 优先直接的 anomaly 分数，其次 classification 里的 anomaly 项
	if result.Result.Anomaly != nil {
		return *result.Result.Anomaly, nil
	}
	if score, ok := result.Result.Classification["anomaly"]; ok {
		return score, nil
	}
	return 0, fmt.Errorf("model %s returned no anomaly score", name)
}

// ClassifyAudio 调用关键词模型，返回标签到置信度的映射
func (c *RunnerClient) ClassifyAudio(ctx context.Context, samples []float32) (map[string]float64, error) {
	result, err := c.invoke(ctx, modelKeyword, classifyRequest{Samples: samples})
	if err != nil {
		return nil, err
	}
	if result.Result.Classification == nil {
		return nil, fmt.Errorf("model %s returned no classification", modelKeyword)
	}
	return result.Result.Classification, nil
}

// invoke 调用单个模型运行器
func (c *RunnerClient) invoke(ctx context.Context, name string, req classifyRequest) (*classifyResponse, error) {
	c.mu.RLock()
	available := c.available[name]
	c.mu.RUnlock()
	if !available {
		return nil, fmt.Errorf("model %s: %w", name, ErrModelUnavailable)
	}

	var result classifyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(c.endpoints[name] + "/classify")
	if err != nil {
		return nil, fmt.Errorf("failed to call model %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model %s returned status %d", name, resp.StatusCode())
	}

	return &result, nil
}
