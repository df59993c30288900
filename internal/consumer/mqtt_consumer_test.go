package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/models"
	"wisefido-vitals-hub/internal/mqtt"
	"wisefido-vitals-hub/internal/store"
)

type fakeSubscriber struct {
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

// deliver 模拟 broker 按通配符订阅投递一条消息
func (f *fakeSubscriber) deliver(t *testing.T, subscription, topic string, payload []byte) {
	t.Helper()
	handler, ok := f.handlers[subscription]
	require.True(t, ok, "no handler for subscription %s", subscription)
	require.NoError(t, handler(topic, payload))
}

type fakeAlertArchiver struct {
	alerts []models.Alert
	images []models.ImageMetaMessage
}

func (f *fakeAlertArchiver) AppendAlert(_ context.Context, alert models.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlertArchiver) AppendImageMeta(_ context.Context, meta models.ImageMetaMessage) error {
	f.images = append(f.images, meta)
	return nil
}

type consumerFixture struct {
	consumer   *Consumer
	subscriber *fakeSubscriber
	queue      *dispatcher.Queue
	store      *store.Store
	archive    *fakeAlertArchiver
	cfg        *config.Config
}

func setupConsumer(t *testing.T) *consumerFixture {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	subscriber := newFakeSubscriber()
	queue := dispatcher.NewQueue(16, zap.NewNop())
	deviceStore := store.NewStore(cfg, zap.NewNop())
	archive := &fakeAlertArchiver{}

	c := NewConsumer(cfg, subscriber, queue, deviceStore, archive, zap.NewNop())
	require.NoError(t, c.Start(context.Background()))

	return &consumerFixture{
		consumer:   c,
		subscriber: subscriber,
		queue:      queue,
		store:      deviceStore,
		archive:    archive,
		cfg:        cfg,
	}
}

func (f *consumerFixture) dequeue(t *testing.T) dispatcher.Task {
	t.Helper()
	task, ok := f.queue.Dequeue(context.Background(), 100*time.Millisecond)
	require.True(t, ok, "expected a queued task")
	return task
}

func TestConsumer_SubscribesAllTopics(t *testing.T) {
	f := setupConsumer(t)

	assert.Len(t, f.subscriber.handlers, 4)
	assert.Contains(t, f.subscriber.handlers, f.cfg.Topics.Vitals)
	assert.Contains(t, f.subscriber.handlers, f.cfg.Topics.Parameters)
	assert.Contains(t, f.subscriber.handlers, f.cfg.Topics.Alerts)
	assert.Contains(t, f.subscriber.handlers, f.cfg.Topics.ImageMetadata)
}

func TestConsumer_VitalsEnqueued(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"device_id":"dev-1","heart_rate":72,"spo2":97,"timestamp":1700000000000}`)
	f.subscriber.deliver(t, f.cfg.Topics.Vitals, "health/vitals/dev-1", payload)

	task := f.dequeue(t)
	assert.Equal(t, dispatcher.TaskVitals, task.Type)
	assert.Equal(t, "dev-1", task.DeviceID)
	require.NotNil(t, task.Vitals)
	assert.Equal(t, 72.0, task.Vitals.HeartRate)
	assert.Equal(t, 97.0, task.Vitals.SpO2)
	assert.Equal(t, int64(1700000000000), task.Vitals.Timestamp)
}

func TestConsumer_ParametersTopicAlsoEnqueues(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"device_id":"dev-2","heart_rate":65,"spo2":98}`)
	f.subscriber.deliver(t, f.cfg.Topics.Parameters, "health/parameters/dev-2", payload)

	task := f.dequeue(t)
	assert.Equal(t, "dev-2", task.DeviceID)
	// 缺失的时间戳由消费器补上
	assert.NotZero(t, task.Vitals.Timestamp)
}

func TestConsumer_MalformedVitalsDropped(t *testing.T) {
	f := setupConsumer(t)

	f.subscriber.deliver(t, f.cfg.Topics.Vitals, "health/vitals/dev-1", []byte("not json"))

	_, ok := f.queue.Dequeue(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
}

func TestConsumer_MissingDeviceIDFallsBackToTopic(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"heart_rate":72,"spo2":97}`)
	f.subscriber.deliver(t, f.cfg.Topics.Vitals, "health/vitals/dev-9", payload)

	task := f.dequeue(t)
	assert.Equal(t, "dev-9", task.DeviceID)
}

func TestConsumer_MissingDeviceIDAndShortTopicIsUnknown(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"heart_rate":72,"spo2":97}`)
	f.subscriber.deliver(t, f.cfg.Topics.Vitals, "health/vitals", payload)

	task := f.dequeue(t)
	assert.Equal(t, "unknown", task.DeviceID)
}

func TestConsumer_DeviceAlertRecordedAndArchived(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"device_id":"dev-1","alert_type":"fall","value":1,"timestamp":1700000000000}`)
	f.subscriber.deliver(t, f.cfg.Topics.Alerts, "health/alerts/dev-1", payload)

	snap, err := f.store.Snapshot("dev-1")
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, "fall", snap.Alerts[0].AlertType)
	assert.Equal(t, 1.0, snap.Alerts[0].Value)
	assert.NotEmpty(t, snap.Alerts[0].AlertID)

	require.Len(t, f.archive.alerts, 1)
	assert.Equal(t, "dev-1", f.archive.alerts[0].DeviceID)

	// 设备端报警不进任务队列
	_, ok := f.queue.Dequeue(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
}

func TestConsumer_ImageMetaRecordedAndArchived(t *testing.T) {
	f := setupConsumer(t)

	payload := []byte(`{"device_id":"dev-1","filename":"snap.jpg","timestamp":1700000000000}`)
	f.subscriber.deliver(t, f.cfg.Topics.ImageMetadata, "health/image_metadata/dev-1", payload)

	snap, err := f.store.Snapshot("dev-1")
	require.NoError(t, err)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "snap.jpg", snap.Images[0].Filename)

	require.Len(t, f.archive.images, 1)
}

func TestConsumer_StopUnsubscribesAllTopics(t *testing.T) {
	f := setupConsumer(t)

	f.consumer.Stop()

	assert.Len(t, f.subscriber.unsubscribed, 4)
}
