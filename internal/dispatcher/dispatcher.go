package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dequeueTimeout worker 的出队阻塞上限，决定关闭信号的响应延迟
const dequeueTimeout = time.Second

// Handler 任务处理器接口（evaluator 实现）
type Handler interface {
	HandleVitals(ctx context.Context, task Task) error
	HandleAudio(ctx context.Context, task Task) error
}

// Dispatcher 固定大小的 worker 池，从队列取任务分发给处理器。
// 单个任务失败只记录并丢弃（无重试），不影响其他任务和队列存活
type Dispatcher struct {
	queue   *Queue
	handler Handler
	workers int
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher 创建分发器。workers 为 1 时所有任务串行处理，
// 与设备内顺序保证一致
func NewDispatcher(queue *Queue, handler Handler, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:   queue,
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Start 启动 worker 池
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Task dispatcher started", zap.Int("workers", d.workers))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop 等待所有 worker 退出。队列中未处理的任务不保证排空（尽力而为）
func (d *Dispatcher) Stop() {
	d.wg.Wait()
	d.logger.Info("Task dispatcher stopped")
}

// worker 消费循环
func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		task, ok := d.queue.Dequeue(ctx, dequeueTimeout)
		if !ok {
			continue
		}

		if err := d.dispatch(ctx, task); err != nil {
			// 失败的任务直接丢弃，不重试
			d.logger.Error("Failed to process task",
				zap.Int("worker", id),
				zap.String("task_type", string(task.Type)),
				zap.String("device_id", task.DeviceID),
				zap.Error(err),
			)
		}
	}
}

// dispatch 按任务类型分发
func (d *Dispatcher) dispatch(ctx context.Context, task Task) error {
	switch task.Type {
	case TaskVitals:
		return d.handler.HandleVitals(ctx, task)
	case TaskAudio:
		return d.handler.HandleAudio(ctx, task)
	default:
		d.logger.Warn("Unknown task type dropped", zap.String("task_type", string(task.Type)))
		return nil
	}
}
