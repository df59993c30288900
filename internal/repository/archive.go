package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/models"
)

// 归档类别（逻辑路径 devices/{id}/{category} 的末段）
const (
	CategoryVitals = "vitals"
	CategoryAlerts = "alerts"
	CategoryImages = "images"
	CategoryAudio  = "audio"
)

// ArchiveRepository 持久归档仓库（device_records 表）。
// 所有写入都是追加新记录，唯一的例外是音频处理结果的两阶段更新
type ArchiveRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewArchiveRepository 创建归档仓库
func NewArchiveRepository(db *sql.DB, logger *zap.Logger) *ArchiveRepository {
	return &ArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// logicalPath 构建归档逻辑路径
func logicalPath(deviceID, category string) string {
	return fmt.Sprintf("devices/%s/%s", deviceID, category)
}

// insertRecord 插入一条归档记录
func (r *ArchiveRepository) insertRecord(ctx context.Context, recordID, deviceID, category string, payload interface{}, processed sql.NullBool) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO device_records (
			record_id, device_id, category, logical_path, payload, processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		recordID,
		deviceID,
		category,
		logicalPath(deviceID, category),
		jsonData,
		processed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s record: %w", category, err)
	}
	return nil
}

// AppendVitals 归档一条生命体征记录。非正值信号不写入（视为缺失）
func (r *ArchiveRepository) AppendVitals(ctx context.Context, v models.VitalsMessage) error {
	payload := map[string]interface{}{
		"timestamp": v.Timestamp,
	}
	if v.HeartRate > 0 {
		payload["heart_rate"] = v.HeartRate
	}
	if v.SpO2 > 0 {
		payload["spo2"] = v.SpO2
	}

	return r.insertRecord(ctx, uuid.New().String(), v.DeviceID, CategoryVitals, payload, sql.NullBool{})
}

// AppendAlert 归档一条报警记录
func (r *ArchiveRepository) AppendAlert(ctx context.Context, alert models.Alert) error {
	return r.insertRecord(ctx, uuid.New().String(), alert.DeviceID, CategoryAlerts, alert, sql.NullBool{})
}

// AppendImageMeta 归档一条图片元数据记录
func (r *ArchiveRepository) AppendImageMeta(ctx context.Context, meta models.ImageMetaMessage) error {
	return r.insertRecord(ctx, uuid.New().String(), meta.DeviceID, CategoryImages, meta, sql.NullBool{})
}

// audioReceivedPayload 音频任务第一阶段的归档内容
type audioReceivedPayload struct {
	Filepath  string `json:"filepath"`
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
}

// CreateAudioRecord 音频归档的第一阶段：写入 processed=false 的接收记录，
// 返回记录 ID 供第二阶段更新
func (r *ArchiveRepository) CreateAudioRecord(ctx context.Context, deviceID, filepath string, timestamp int64) (string, error) {
	recordID := uuid.New().String()
	payload := audioReceivedPayload{
		Filepath:  filepath,
		DeviceID:  deviceID,
		Timestamp: timestamp,
	}

	if err := r.insertRecord(ctx, recordID, deviceID, CategoryAudio, payload, sql.NullBool{Bool: false, Valid: true}); err != nil {
		return "", err
	}
	return recordID, nil
}

// AudioOutcome 音频处理结果
type AudioOutcome struct {
	KeywordDetected bool    `json:"keyword_detected"`
	Keyword         string  `json:"keyword,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// UpdateAudioOutcome 音频归档的第二阶段：把结果合并进记录并标记 processed。
// 两阶段之间进程崩溃会留下 processed=false 的记录，不做补偿扫描
func (r *ArchiveRepository) UpdateAudioOutcome(ctx context.Context, recordID string, outcome AudioOutcome) error {
	jsonData, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal audio outcome: %w", err)
	}

	query := `
		UPDATE device_records
		SET processed = true,
		    payload = payload || $2::jsonb,
		    updated_at = NOW()
		WHERE record_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, recordID, jsonData)
	if err != nil {
		return fmt.Errorf("failed to update audio record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("audio record not found: %s", recordID)
	}
	return nil
}
