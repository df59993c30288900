package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/models"
	"wisefido-vitals-hub/internal/store"
)

// 查询接口里报警/图片默认返回的条数
const recentItems = 5

// ModelInventory 已加载模型清单（classifier.RunnerClient 实现）
type ModelInventory interface {
	LoadedModels() []string
}

// MediaArchiver HTTP 上传产生的元数据归档（repository 实现）
type MediaArchiver interface {
	AppendImageMeta(ctx context.Context, meta models.ImageMetaMessage) error
}

// Handler 查询与上传接口
type Handler struct {
	cfg     *config.Config
	store   *store.Store
	queue   *dispatcher.Queue
	models  ModelInventory
	archive MediaArchiver
	logger  *zap.Logger
}

// NewHandler 创建 HTTP Handler
func NewHandler(
	cfg *config.Config,
	deviceStore *store.Store,
	queue *dispatcher.Queue,
	modelInventory ModelInventory,
	archive MediaArchiver,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   deviceStore,
		queue:   queue,
		models:  modelInventory,
		archive: archive,
		logger:  logger,
	}
}

// deviceIDFromPath 提取 /prefix/{device_id} 里的设备 ID
func deviceIDFromPath(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

// GetHealth 服务健康状态
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	modelsLoaded := []string{}
	if h.models != nil {
		modelsLoaded = h.models.LoadedModels()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"models_loaded":  modelsLoaded,
		"active_devices": h.store.DeviceCount(),
		"queue_size":     h.queue.Len(),
	})
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func latest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func tailAlerts(alerts []models.Alert, n int) []models.Alert {
	if len(alerts) > n {
		alerts = alerts[len(alerts)-n:]
	}
	return alerts
}

func tailImages(images []models.ImageMetaMessage, n int) []models.ImageMetaMessage {
	if len(images) > n {
		images = images[len(images)-n:]
	}
	return images
}

// GetDevice 设备概要：最新/平均读数 + 最近的报警与图片
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFromPath(r.URL.Path, "/device/")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id required")
		return
	}

	snap, err := h.store.Snapshot(deviceID)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		h.logger.Error("Failed to read device snapshot",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id":     snap.DeviceID,
		"last_activity": snap.LastActivity.UnixMilli(),
		"heart_rate": map[string]interface{}{
			"latest":  latest(snap.HeartRate),
			"average": mean(snap.HeartRate),
			"count":   len(snap.HeartRate),
		},
		"spo2": map[string]interface{}{
			"latest":  latest(snap.SpO2),
			"average": mean(snap.SpO2),
			"count":   len(snap.SpO2),
		},
		"recent_alerts": tailAlerts(snap.Alerts, recentItems),
		"recent_images": tailImages(snap.Images, recentItems),
	})
}

// parseOptionalInt 解析可选的整数查询参数，缺失时返回 fallback
func parseOptionalInt(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// GetAlerts 报警历史，支持毫秒时间范围过滤
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFromPath(r.URL.Path, "/alerts/")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id required")
		return
	}

	startTime, err := parseOptionalInt(r, "start_time", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	endTime, err := parseOptionalInt(r, "end_time", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time")
		return
	}

	snap, err := h.store.Snapshot(deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	alerts := make([]models.Alert, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		if startTime > 0 && a.Timestamp < startTime {
			continue
		}
		if endTime > 0 && a.Timestamp > endTime {
			continue
		}
		alerts = append(alerts, a)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"alerts":    alerts,
		"count":     len(alerts),
	})
}

// GetVitalsHistory 生命体征历史，limit 限制返回最近的条数
func (h *Handler) GetVitalsHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFromPath(r.URL.Path, "/vitals_history/")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id required")
		return
	}

	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	snap, err := h.store.Snapshot(deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	heartRate := snap.HeartRate
	spo2 := snap.SpO2
	if limit > 0 {
		if int64(len(heartRate)) > limit {
			heartRate = heartRate[int64(len(heartRate))-limit:]
		}
		if int64(len(spo2)) > limit {
			spo2 = spo2[int64(len(spo2))-limit:]
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id":  deviceID,
		"heart_rate": heartRate,
		"spo2":       spo2,
	})
}
