package models

// 报警类型
const (
	AlertTypeThreshold = "threshold"
	AlertTypeAnomaly   = "anomaly"
	AlertTypeKeyword   = "keyword"
)

// 报警来源（source 字段取值）
const (
	SourceBPMHigh = "bpm_high"
	SourceBPMLow  = "bpm_low"
	SourceSpO2Low = "spo2_low"
	SourceBPM     = "bpm"
	SourceSpO2    = "spo2"
	SourceKeyword = "keyword"
)

// Alert 报警事件。入队后不可变；AlertID 和 Timestamp 由 alert.Dispatcher
// 在发送时补齐（评估器保持纯函数，不生成随机 ID）
type Alert struct {
	AlertID       string   `json:"alert_id,omitempty"`
	DeviceID      string   `json:"device_id"`
	AlertType     string   `json:"alert_type"` // threshold / anomaly / keyword
	Source        string   `json:"source"`
	Value         float64  `json:"value"`
	Threshold     *float64 `json:"threshold,omitempty"`     // threshold 报警携带触发阈值
	AnomalyScore  *float64 `json:"anomaly_score,omitempty"` // anomaly 报警携带模型分数
	Keyword       string   `json:"keyword,omitempty"`       // keyword 报警携带识别到的关键词
	Confidence    *float64 `json:"confidence,omitempty"`
	AudioFilepath string   `json:"audio_filepath,omitempty"`
	Timestamp     int64    `json:"timestamp"` // Unix 毫秒
}
