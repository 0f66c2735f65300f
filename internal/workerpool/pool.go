package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task 定义任务函数类型，ctx 在 Pool 关闭时取消
type Task func(ctx context.Context)

// Stats 运行统计
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Rejected  uint64 `json:"rejected"`
	Panicked  uint64 `json:"panicked"`
}

// Pool Worker Pool 实现，用于审计写入和 NATS 通知投递这类异步任务
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
}

// New 创建一个新的 Worker Pool
// workers: worker 数量
// queueSize: 任务队列大小
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "workerpool"),
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

// worker 工作协程，队列关闭且取空后退出
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(id, task)
	}
}

// run 执行任务，捕获 panic
func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("Task panic recovered",
				"worker_id", id,
				"panic", r)
		}
	}()
	task(p.ctx)
}

// Submit 提交任务到 Worker Pool
// 如果队列满了，会阻塞直到有空位、ctx 取消或 Pool 关闭
func (p *Pool) Submit(ctx context.Context, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return false
	}

	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return true
	case <-ctx.Done():
	case <-p.ctx.Done():
	}
	p.rejected.Add(1)
	return false
}

// TrySubmit 尝试提交任务，如果队列满了立即返回 false
func (p *Pool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return false
	}

	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Stats 返回运行统计
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Shutdown 优雅关闭 Worker Pool
// 不再接收新任务，等待队列中已有任务执行完毕；ctx 到期后取消任务的 ctx 并继续等待退出
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("Worker pool shutdown timed out, cancelling tasks")
		p.cancel()
		<-done
	}
	p.cancel()

	p.logger.Info("Worker pool shutdown completed")
}
