package models

// Signal 生命体征信号类型
type Signal string

const (
	SignalHeartRate Signal = "bpm"
	SignalSpO2      Signal = "spo2"
)

// VitalsMessage 设备上报的生命体征消息（health/vitals 和 health/parameters 主题）
// 字段缺失或无法解析的消息直接丢弃，不做动态取值
type VitalsMessage struct {
	DeviceID  string  `json:"device_id"`
	HeartRate float64 `json:"heart_rate"`
	SpO2      float64 `json:"spo2"`
	Timestamp int64   `json:"timestamp"` // Unix 毫秒
}

// DeviceAlertMessage 设备端自行上报的报警（health/alerts 主题）
type DeviceAlertMessage struct {
	DeviceID  string   `json:"device_id"`
	AlertType string   `json:"alert_type"`
	Source    string   `json:"source,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// ImageMetaMessage 图片元数据（health/image_metadata 主题或 HTTP 上传后生成）
type ImageMetaMessage struct {
	DeviceID  string `json:"device_id"`
	Filename  string `json:"filename"`
	Path      string `json:"path,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒
}

// RealtimeVitals 最新生命体征快照（写入 Redis 供外部看板读取）
type RealtimeVitals struct {
	DeviceID  string   `json:"device_id"`
	HeartRate *float64 `json:"heart_rate,omitempty"`
	SpO2      *float64 `json:"spo2,omitempty"`
	Timestamp int64    `json:"timestamp"`
}
