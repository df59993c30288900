package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg, err := config.Load()
	require.NoError(t, err)

	return mr, NewManager(cfg, redisClient, zap.NewNop())
}

func floatPtr(v float64) *float64 { return &v }

func TestManager_UpdateAndGetRealtime(t *testing.T) {
	_, manager := setupTestCache(t)
	ctx := context.Background()

	err := manager.UpdateRealtime(ctx, &models.RealtimeVitals{
		DeviceID:  "dev-1",
		HeartRate: floatPtr(72),
		SpO2:      floatPtr(97),
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	data, err := manager.GetRealtime(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, floatPtr(72), data.HeartRate)
	assert.Equal(t, floatPtr(97), data.SpO2)
	assert.Equal(t, int64(1700000000000), data.Timestamp)
}

func TestManager_GetRealtime_NotFound(t *testing.T) {
	_, manager := setupTestCache(t)

	_, err := manager.GetRealtime(context.Background(), "no-such-device")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "realtime data not found")
}

func TestManager_UpdateAlerts(t *testing.T) {
	mr, manager := setupTestCache(t)
	ctx := context.Background()

	alerts := []models.Alert{
		{AlertID: "a-1", DeviceID: "dev-1", AlertType: models.AlertTypeThreshold, Source: models.SourceBPMHigh, Value: 130},
		{AlertID: "a-2", DeviceID: "dev-1", AlertType: models.AlertTypeAnomaly, Source: models.SourceBPM, Value: 131},
	}
	require.NoError(t, manager.UpdateAlerts(ctx, "dev-1", alerts))

	val, err := mr.Get("vitals-hub:device:dev-1:alerts")
	require.NoError(t, err)

	var cached []models.Alert
	require.NoError(t, json.Unmarshal([]byte(val), &cached))
	assert.Len(t, cached, 2)
	assert.Equal(t, "a-1", cached[0].AlertID)

	// TTL 已设置
	mr.FastForward(manager.ttl * 2)
	assert.False(t, mr.Exists("vitals-hub:device:dev-1:alerts"))
}
