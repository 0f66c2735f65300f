package revocation

import (
	"context"
	"log/slog"
	"time"
)

// Syncer 定时把缓存同步到持久存储
type Syncer struct {
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncer 创建同步器，interval <= 0 时使用 60 分钟
func NewSyncer(cache *Cache, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 60 * time.Minute
	}

	return &Syncer{
		cache:    cache,
		interval: interval,
		logger:   logger.With("component", "revocation-syncer"),
	}
}

// Start 启动同步循环（阻塞，应在 goroutine 中调用）
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Revocation syncer started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Revocation syncer stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce 执行一次同步并记录结果
func (s *Syncer) runOnce(ctx context.Context) {
	start := time.Now()
	result := s.cache.Sync(ctx)

	attrs := []any{
		"evicted", result.Evicted,
		"pushed", result.Pushed,
		"failed", result.Failed,
		"size", s.cache.Len(),
		"elapsed", time.Since(start),
	}

	if result.Reset || result.Dropped > 0 {
		s.logger.Warn("Revocation cache reached capacity",
			append(attrs, "dropped", result.Dropped, "reset", result.Reset)...)
		return
	}
	if result.Failed > 0 {
		s.logger.Warn("Revocation sync completed with failures", attrs...)
		return
	}
	s.logger.Debug("Revocation sync completed", attrs...)
}
