package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	Redis       string `json:"redis"`
	NATS        string `json:"nats"`
	Database    string `json:"database"`
	Connections int    `json:"connections"`
	Revoked     int    `json:"revoked"`
}

// Pinger Redis 客户端与 pgxpool.Pool 都满足
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnState NATS 连接状态
type ConnState interface {
	IsConnected() bool
}

// Counter 连接数、失效 token 缓存条目数
type Counter interface {
	Count() int
}

// Options 可选依赖，nil 表示未配置
type Options struct {
	Redis       Pinger
	NATS        ConnState
	Database    Pinger
	Connections Counter
	Revoked     interface{ Len() int }
	Timeout     time.Duration
}

// Checker 健康检查器
type Checker struct {
	opts Options
}

// NewChecker 创建健康检查器
func NewChecker(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Checker{opts: opts}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service:  "gateway",
		Redis:    h.ping(ctx, h.opts.Redis),
		Database: h.ping(ctx, h.opts.Database),
		NATS:     statusNotConfigured,
	}

	if h.opts.NATS != nil {
		if h.opts.NATS.IsConnected() {
			status.NATS = statusConnected
		} else {
			status.NATS = statusDisconnected
		}
	}

	if h.opts.Connections != nil {
		status.Connections = h.opts.Connections.Count()
	}
	if h.opts.Revoked != nil {
		status.Revoked = h.opts.Revoked.Len()
	}

	return status
}

func (h *Checker) ping(ctx context.Context, p Pinger) string {
	if p == nil {
		return statusNotConfigured
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		return statusDisconnected
	}
	return statusConnected
}

// IsHealthy 已配置的依赖都可用
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return healthy(h.Check(ctx))
}

func healthy(s *Status) bool {
	for _, v := range []string{s.Redis, s.NATS, s.Database} {
		if v == statusDisconnected {
			return false
		}
	}
	return true
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if healthy(status) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
