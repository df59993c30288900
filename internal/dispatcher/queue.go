package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Queue 有界 FIFO 任务队列。任意数量的生产者并发入队，
// 入队不阻塞：队列满时丢弃任务并记录
type Queue struct {
	tasks  chan Task
	logger *zap.Logger
}

// NewQueue 创建任务队列
func NewQueue(size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		tasks:  make(chan Task, size),
		logger: logger,
	}
}

// Enqueue 入队。队列满时返回 false（任务丢弃，生产者不阻塞）
func (q *Queue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("Task queue full, dropping task",
			zap.String("task_type", string(task.Type)),
			zap.String("device_id", task.DeviceID),
		)
		return false
	}
}

// Dequeue 出队。最多阻塞 timeout，以便 worker 观察到关闭信号。
// 返回 false 表示超时或 ctx 已取消
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Task, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		return task, true
	case <-ctx.Done():
		return Task{}, false
	case <-timer.C:
		return Task{}, false
	}
}

// Len 当前队列深度
func (q *Queue) Len() int {
	return len(q.tasks)
}
