package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/models"
)

// recordingHandler 记录收到的任务，可配置对某些设备返回错误
type recordingHandler struct {
	mu       sync.Mutex
	vitals   []Task
	audio    []Task
	failFor  map[string]bool
	received chan struct{}
}

func newRecordingHandler(buffer int) *recordingHandler {
	return &recordingHandler{
		failFor:  make(map[string]bool),
		received: make(chan struct{}, buffer),
	}
}

func (h *recordingHandler) HandleVitals(_ context.Context, task Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() { h.received <- struct{}{} }()
	if h.failFor[task.DeviceID] {
		return errors.New("handler failure")
	}
	h.vitals = append(h.vitals, task)
	return nil
}

func (h *recordingHandler) HandleAudio(_ context.Context, task Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() { h.received <- struct{}{} }()
	h.audio = append(h.audio, task)
	return nil
}

func (h *recordingHandler) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.received:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for task %d of %d", i+1, n)
		}
	}
}

func vitalsTask(deviceID string, hr float64) Task {
	return Task{
		Type:     TaskVitals,
		DeviceID: deviceID,
		Vitals:   &models.VitalsMessage{DeviceID: deviceID, HeartRate: hr, SpO2: 97},
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10, zap.NewNop())

	require.True(t, q.Enqueue(vitalsTask("dev-1", 70)))
	require.True(t, q.Enqueue(vitalsTask("dev-1", 71)))
	require.True(t, q.Enqueue(vitalsTask("dev-1", 72)))
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for _, want := range []float64{70, 71, 72} {
		task, ok := q.Dequeue(ctx, time.Second)
		require.True(t, ok)
		assert.Equal(t, want, task.Vitals.HeartRate)
	}
}

func TestQueue_FullDropsWithoutBlocking(t *testing.T) {
	q := NewQueue(2, zap.NewNop())

	assert.True(t, q.Enqueue(vitalsTask("dev-1", 70)))
	assert.True(t, q.Enqueue(vitalsTask("dev-1", 71)))

	done := make(chan bool, 1)
	go func() {
		done <- q.Enqueue(vitalsTask("dev-1", 72))
	}()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestQueue_DequeueObservesCancellation(t *testing.T) {
	q := NewQueue(10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := q.Dequeue(ctx, 10*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_ProcessesBothTaskTypes(t *testing.T) {
	q := NewQueue(10, zap.NewNop())
	handler := newRecordingHandler(10)
	d := NewDispatcher(q, handler, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	q.Enqueue(vitalsTask("dev-1", 70))
	q.Enqueue(Task{
		Type:     TaskAudio,
		DeviceID: "dev-1",
		Audio:    &AudioPayload{Samples: []int16{100, -100}},
	})

	handler.waitFor(t, 2)
	cancel()
	d.Stop()

	assert.Len(t, handler.vitals, 1)
	assert.Len(t, handler.audio, 1)
}

func TestDispatcher_HandlerFailureDoesNotStopPool(t *testing.T) {
	q := NewQueue(10, zap.NewNop())
	handler := newRecordingHandler(10)
	handler.failFor["dev-bad"] = true
	d := NewDispatcher(q, handler, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	q.Enqueue(vitalsTask("dev-bad", 70))
	q.Enqueue(vitalsTask("dev-ok", 71))
	q.Enqueue(vitalsTask("dev-ok", 72))

	handler.waitFor(t, 3)
	cancel()
	d.Stop()

	// 失败的任务被丢弃，后续任务照常处理
	require.Len(t, handler.vitals, 2)
	assert.Equal(t, "dev-ok", handler.vitals[0].DeviceID)
	assert.Equal(t, 71.0, handler.vitals[0].Vitals.HeartRate)
	assert.Equal(t, 72.0, handler.vitals[1].Vitals.HeartRate)
}

func TestDispatcher_StopsWithinPollingInterval(t *testing.T) {
	q := NewQueue(10, zap.NewNop())
	handler := newRecordingHandler(1)
	d := NewDispatcher(q, handler, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher did not stop within one polling interval")
	}
}
