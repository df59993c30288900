package dispatcher

import (
	"wisefido-vitals-hub/internal/models"
)

// TaskType 任务类型
type TaskType string

const (
	TaskVitals TaskType = "vitals"
	TaskAudio  TaskType = "audio"
)

// AudioPayload 音频任务载荷（16-bit PCM 采样）
type AudioPayload struct {
	Samples  []int16
	Filepath string
}

// Task 处理任务。入队后不可变，所有权从生产者转移到队列再到 worker
type Task struct {
	Type       TaskType
	DeviceID   string
	Vitals     *models.VitalsMessage
	Audio      *AudioPayload
	IngestedAt int64 // Unix 毫秒
}
