package audit

import (
	"context"
	"log/slog"
	"time"
)

// Kind 审计类型，取值与原后端的 audit_logs.type 一致
type Kind int

const (
	KindUnauthorized Kind = 0 // 未携带凭证的请求
	KindUserEvent    Kind = 1 // 用户事件（连接、断开、登出）
	KindAuthFailure  Kind = 2 // 认证失败
	KindSystemError  Kind = 3
	KindTwoFactor    Kind = 4
	KindDataUpdate   Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindUserEvent:
		return "user_event"
	case KindAuthFailure:
		return "authentication_failure"
	case KindSystemError:
		return "system_error"
	case KindTwoFactor:
		return "two_factor"
	case KindDataUpdate:
		return "data_update"
	default:
		return "unknown"
	}
}

// Entry 一条审计记录
type Entry struct {
	Kind          Kind
	SourceAddress string
	ClientAgent   string
	Description   string
	CreatedAt     time.Time
}

// Sink 审计记录的写入目标
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Logger 只写日志的 Sink，未配置数据库时使用
type Logger struct {
	logger *slog.Logger
}

// NewLogger 创建日志 Sink
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger.With("component", "audit")}
}

// Append 输出一条审计日志
func (l *Logger) Append(ctx context.Context, entry Entry) error {
	level := slog.LevelInfo
	if entry.Kind == KindUnauthorized || entry.Kind == KindAuthFailure || entry.Kind == KindSystemError {
		level = slog.LevelWarn
	}

	l.logger.Log(ctx, level, "Audit",
		"kind", entry.Kind.String(),
		"source_address", entry.SourceAddress,
		"client_agent", entry.ClientAgent,
		"description", entry.Description,
		"created_at", entry.CreatedAt)
	return nil
}
