package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/DurmazDev/microblog/internal/workerpool"
)

// SubjectNotification REST 后端发布服务端通知的 Subject
// 每个网关实例都需要收到全部通知，不使用队列组
const SubjectNotification = "microblog.notification"

// NotificationMessage 服务端通知，字段与 set:notification 一致
type NotificationMessage struct {
	UserID         string         `json:"user_id"`
	EventType      *int           `json:"event_type"`
	ActorName      string         `json:"actor_name"`
	AdditionalData map[string]any `json:"additional_data"`
}

// Notifier 通知投递
type Notifier interface {
	Notify(code int, actorName, targetUserID string, extra map[string]any) bool
}

// NotificationSubscriber 订阅服务端通知，投递交给 worker pool
type NotificationSubscriber struct {
	nc           *nats.Conn
	notifier     Notifier
	pool         *workerpool.Pool
	logger       *slog.Logger
	subscription *nats.Subscription
}

// NewNotificationSubscriber 创建通知订阅器
func NewNotificationSubscriber(nc *nats.Conn, notifier Notifier, pool *workerpool.Pool, logger *slog.Logger) *NotificationSubscriber {
	return &NotificationSubscriber{
		nc:       nc,
		notifier: notifier,
		pool:     pool,
		logger:   logger.With("component", "nats-subscriber"),
	}
}

// Start 启动订阅
func (s *NotificationSubscriber) Start() error {
	sub, err := s.nc.Subscribe(SubjectNotification, func(msg *nats.Msg) {
		data := msg.Data
		if !s.pool.TrySubmit(func(ctx context.Context) {
			s.handle(data)
		}) {
			s.logger.Warn("Worker pool full, dropping notification")
		}
	})
	if err != nil {
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS subscriber started", "subject", SubjectNotification)
	return nil
}

// handle 解码并投递一条通知
func (s *NotificationSubscriber) handle(data []byte) bool {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error("Failed to unmarshal notification", "error", err)
		return false
	}
	if msg.UserID == "" || msg.EventType == nil {
		s.logger.Debug("Notification missing user_id or event_type")
		return false
	}

	return s.notifier.Notify(*msg.EventType, msg.ActorName, msg.UserID, msg.AdditionalData)
}

// Stop 停止订阅
func (s *NotificationSubscriber) Stop() {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}
	s.logger.Info("NATS subscriber stopped")
}
