package httpapi

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/models"
)

// 单次上传的大小上限
const maxUploadBytes = 16 << 20

// deviceIDFromHeader Device-ID 请求头，缺失归到 unknown
func deviceIDFromHeader(r *http.Request) string {
	if id := r.Header.Get("Device-ID"); id != "" {
		return id
	}
	return "unknown"
}

// uniqueFilename 在原始文件名的扩展名前插入 uuid 后缀
func uniqueFilename(original string) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(filepath.Base(original), ext)
	return fmt.Sprintf("%s_%s%s", base, uuid.New().String(), ext)
}

// UploadImage 接收图片字节流，落盘后记录元数据
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFromHeader(r)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	original := r.Header.Get("X-Filename")
	if original == "" {
		original = "capture.jpg"
	}
	filename := uniqueFilename(original)

	if err := os.MkdirAll(h.cfg.HTTP.ImageDir, 0o755); err != nil {
		h.logger.Error("Failed to create image directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	fullPath := filepath.Join(h.cfg.HTTP.ImageDir, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		h.logger.Error("Failed to save image",
			zap.String("device_id", deviceID),
			zap.String("path", fullPath),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	meta := models.ImageMetaMessage{
		DeviceID:  deviceID,
		Filename:  filename,
		Path:      fullPath,
		Timestamp: time.Now().UnixMilli(),
	}
	h.store.RecordImageMeta(deviceID, meta)
	if err := h.archive.AppendImageMeta(r.Context(), meta); err != nil {
		h.logger.Error("Failed to archive image metadata",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	h.logger.Info("Image uploaded",
		zap.String("device_id", deviceID),
		zap.String("filename", filename),
		zap.Int("bytes", len(data)),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"filename":  filename,
		"size":      len(data),
	})
}

// decodePCM 把小端字节流解码成 16-bit 采样
func decodePCM(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}

// ProcessAudio 接收 16-bit PCM 字节流，落盘后入队异步做关键词识别
func (h *Handler) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFromHeader(r)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(data) < 2 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	if err := os.MkdirAll(h.cfg.HTTP.AudioDir, 0o755); err != nil {
		h.logger.Error("Failed to create audio directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	filename := fmt.Sprintf("%s_%s.pcm", deviceID, uuid.New().String())
	fullPath := filepath.Join(h.cfg.HTTP.AudioDir, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		h.logger.Error("Failed to save audio",
			zap.String("device_id", deviceID),
			zap.String("path", fullPath),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to save audio")
		return
	}

	samples := decodePCM(data)
	enqueued := h.queue.Enqueue(dispatcher.Task{
		Type:     dispatcher.TaskAudio,
		DeviceID: deviceID,
		Audio: &dispatcher.AudioPayload{
			Samples:  samples,
			Filepath: fullPath,
		},
		IngestedAt: time.Now().UnixMilli(),
	})
	if !enqueued {
		writeError(w, http.StatusServiceUnavailable, "queue full")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"device_id": deviceID,
		"filename":  filename,
		"samples":   len(samples),
		"status":    "queued",
	})
}
