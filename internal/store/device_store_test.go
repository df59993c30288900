package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewStore(cfg, zap.NewNop())
}

func TestHistory_CapacityAndOrder(t *testing.T) {
	h := NewHistory[int](3)
	for i := 1; i <= 5; i++ {
		h.Append(i)
	}

	assert.Equal(t, 3, h.Len())
	// 最旧在前，溢出时丢弃最旧的
	assert.Equal(t, []int{3, 4, 5}, h.Values())
	assert.Equal(t, []int{4, 5}, h.Tail(2))
	assert.Equal(t, []int{3, 4, 5}, h.Tail(10))
}

func TestHistory_KeepsDuplicates(t *testing.T) {
	h := NewHistory[float64](5)
	h.Append(72)
	h.Append(72)
	h.Append(72)

	// 重复读数全部保留，不做去重
	assert.Equal(t, []float64{72, 72, 72}, h.Values())
}

func TestStore_VitalsCapacityInvariant(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 250; i++ {
		s.RecordVitals("dev-1", float64(60+i%40), float64(95+i%5))
	}

	snap, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(snap.HeartRate), 100)
	assert.LessOrEqual(t, len(snap.SpO2), 100)
	assert.Len(t, snap.HeartRate, 100)
}

func TestStore_AlertCapacityInvariant(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 50; i++ {
		s.RecordAlert("dev-1", models.Alert{
			DeviceID:  "dev-1",
			AlertType: models.AlertTypeThreshold,
			Source:    models.SourceBPMHigh,
			Value:     float64(120 + i),
		})
	}

	snap, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	assert.Len(t, snap.Alerts, 20)
	// FIFO：保留最近 20 条
	assert.Equal(t, 150.0, snap.Alerts[0].Value)
	assert.Equal(t, 169.0, snap.Alerts[19].Value)
}

func TestStore_ImageCapacityInvariant(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 15; i++ {
		s.RecordImageMeta("dev-1", models.ImageMetaMessage{
			DeviceID: "dev-1",
			Filename: fmt.Sprintf("img-%d.jpg", i),
		})
	}

	snap, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	assert.Len(t, snap.Images, 10)
	assert.Equal(t, "img-5.jpg", snap.Images[0].Filename)
}

func TestStore_NonPositiveReadingsSkipped(t *testing.T) {
	s := newTestStore(t)

	// SpO2 缺失（0）时只记录心率
	s.RecordVitals("dev-1", 72, 0)
	s.RecordVitals("dev-1", 0, 97)

	snap, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{72}, snap.HeartRate)
	assert.Equal(t, []float64{97}, snap.SpO2)
}

func TestStore_SnapshotUnknownDevice(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Snapshot("no-such-device")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := newTestStore(t)
	s.RecordVitals("dev-1", 72, 97)

	snap, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	snap.HeartRate[0] = 999

	snap2, err := s.Snapshot("dev-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{72}, snap2.HeartRate)
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	s.RecordVitals("dev-1", 72, 97)
	require.Equal(t, 1, s.DeviceCount())

	s.Remove("dev-1")
	assert.Equal(t, 0, s.DeviceCount())
	_, err := s.Snapshot("dev-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestStore_EvictStale(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	s.now = func() time.Time { return base }
	s.RecordVitals("dev-stale", 72, 97)

	s.now = func() time.Time { return base.Add(1 * time.Second) }
	s.RecordVitals("dev-fresh", 80, 96)

	// dev-stale 不活跃 3601 秒，dev-fresh 3599 秒（边界保留）
	s.now = func() time.Time { return base.Add(3601 * time.Second) }
	removed := s.EvictStale(3600 * time.Second)

	assert.Equal(t, []string{"dev-stale"}, removed)
	assert.Equal(t, 1, s.DeviceCount())
	_, err := s.Snapshot("dev-fresh")
	assert.NoError(t, err)
}

func TestStore_ConcurrentDevicesDoNotInterleave(t *testing.T) {
	s := newTestStore(t)

	const perDevice = 200
	var wg sync.WaitGroup
	for _, deviceID := range []string{"dev-a", "dev-b"} {
		wg.Add(1)
		go func(id string, offset float64) {
			defer wg.Done()
			for i := 0; i < perDevice; i++ {
				s.RecordVitals(id, offset, offset+20)
			}
		}(deviceID, map[string]float64{"dev-a": 60, "dev-b": 90}[deviceID])
	}
	wg.Wait()

	snapA, err := s.Snapshot("dev-a")
	require.NoError(t, err)
	snapB, err := s.Snapshot("dev-b")
	require.NoError(t, err)

	// 两个设备的历史互不污染
	assert.Len(t, snapA.HeartRate, 100)
	assert.Len(t, snapB.HeartRate, 100)
	for _, v := range snapA.HeartRate {
		assert.Equal(t, 60.0, v)
	}
	for _, v := range snapB.HeartRate {
		assert.Equal(t, 90.0, v)
	}
}
