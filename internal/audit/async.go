package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/DurmazDev/microblog/internal/workerpool"
)

// Async 把写入提交到 worker pool，调用方不等待落库
// 队列满或写入失败只记日志
type Async struct {
	sink    Sink
	pool    *workerpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsync 包装一个 Sink
func NewAsync(sink Sink, pool *workerpool.Pool, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Async{
		sink:    sink,
		pool:    pool,
		timeout: timeout,
		logger:  logger.With("component", "audit"),
	}
}

// Append 异步追加，始终返回 nil
func (a *Async) Append(_ context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	ok := a.pool.TrySubmit(func(ctx context.Context) {
		writeCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.sink.Append(writeCtx, entry); err != nil {
			a.logger.Error("Failed to append audit entry",
				"kind", entry.Kind.String(),
				"error", err)
		}
	})
	if !ok {
		a.logger.Warn("Audit queue full, entry dropped",
			"kind", entry.Kind.String(),
			"description", entry.Description)
	}
	return nil
}
