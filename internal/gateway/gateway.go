package gateway

import (
	"context"
	"log/slog"

	"github.com/DurmazDev/microblog/internal/audit"
	"github.com/DurmazDev/microblog/internal/auth"
	"github.com/DurmazDev/microblog/internal/connection"
	"github.com/DurmazDev/microblog/internal/notification"
	"github.com/DurmazDev/microblog/internal/protocol"
	"github.com/DurmazDev/microblog/internal/room"
)

// Authenticator 每个事件处理前的鉴权
type Authenticator interface {
	CheckToken(ctx context.Context, token string, src auth.Source) (*auth.Identity, error)
}

// handlerFunc 事件处理函数，只在鉴权通过后调用
type handlerFunc func(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope)

// Gateway 入站事件路由
type Gateway struct {
	auth       Authenticator
	registry   *connection.Registry
	rooms      *room.Broker
	dispatcher *notification.Dispatcher
	audit      audit.Sink
	logger     *slog.Logger
	handlers   map[string]handlerFunc
}

// New 创建事件路由，sink 可为 nil
func New(authenticator Authenticator, registry *connection.Registry, rooms *room.Broker,
	dispatcher *notification.Dispatcher, sink audit.Sink, logger *slog.Logger) *Gateway {
	g := &Gateway{
		auth:       authenticator,
		registry:   registry,
		rooms:      rooms,
		dispatcher: dispatcher,
		audit:      sink,
		logger:     logger.With("component", "gateway"),
	}

	g.handlers = map[string]handlerFunc{
		protocol.EventConnect:            g.handleConnect,
		protocol.EventJoin:               g.handleJoin,
		protocol.EventLeave:              g.handleLeave,
		protocol.EventMessage:            g.handleMessage,
		protocol.EventActiveUsers:        g.handleActiveUsers,
		protocol.EventPrivateChatRequest: g.handlePrivateChatRequest,
		protocol.EventSetNotification:    g.handleSetNotification,
	}
	return g
}

// Connect 握手鉴权通过后调用：绑定身份并登记在线
func (g *Gateway) Connect(ctx context.Context, sess *connection.Session, id *auth.Identity) {
	sess.Bind(id.UserID, id.Name, id.Token)
	if prev := g.registry.Join(id.UserID, id.Name, sess); prev != nil {
		g.logger.Debug("Session replaced",
			"user_id", id.UserID,
			"previous_session", prev.ID().String())
	}

	g.logger.Info("Session connected",
		"user_id", id.UserID,
		"session_id", sess.ID().String(),
		"remote_addr", sess.RemoteAddr())
	g.appendAudit(ctx, sess, "user connected: "+id.UserID)
}

// HandleFrame 处理一帧：解码、用会话 token 重新鉴权、分发
// 任何失败都只丢弃该事件
func (g *Gateway) HandleFrame(ctx context.Context, sess *connection.Session, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		g.logger.Debug("Invalid frame dropped", "session_id", sess.ID().String(), "error", err)
		return
	}

	handler, ok := g.handlers[env.Event]
	if !ok {
		g.logger.Debug("Unknown event dropped", "event", env.Event)
		return
	}

	id, err := g.auth.CheckToken(ctx, sess.Token(), auth.Source{
		Address: sess.RemoteAddr(),
		Agent:   sess.UserAgent(),
	})
	if err != nil {
		g.logger.Debug("Event rejected by auth",
			"event", env.Event,
			"session_id", sess.ID().String(),
			"error", err)
		return
	}

	handler(ctx, sess, id, env)
}

// Disconnect 连接断开：移出在线表和所有房间，不广播
func (g *Gateway) Disconnect(ctx context.Context, sess *connection.Session) {
	userID, _ := g.registry.LeaveBySession(sess)
	left := g.rooms.LeaveAll(sess)
	sess.Close()

	g.logger.Info("Session disconnected",
		"user_id", sess.UserID(),
		"session_id", sess.ID().String(),
		"rooms", len(left))
	if userID != "" {
		g.appendAudit(ctx, sess, "user disconnected: "+userID)
	}
}

func (g *Gateway) appendAudit(ctx context.Context, sess *connection.Session, description string) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Append(ctx, audit.Entry{
		Kind:          audit.KindUserEvent,
		SourceAddress: sess.RemoteAddr(),
		ClientAgent:   sess.UserAgent(),
		Description:   description,
	}); err != nil {
		g.logger.Error("Failed to append audit entry", "error", err)
	}
}

// bind 解析 data，失败时记录并返回 false
func (g *Gateway) bind(env *protocol.Envelope, v any) bool {
	if err := env.Bind(v); err != nil {
		g.logger.Debug("Invalid event payload", "event", env.Event, "error", err)
		return false
	}
	return true
}

// reply 只发给请求方
func (g *Gateway) reply(sess *connection.Session, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		g.logger.Error("Failed to encode reply", "event", event, "error", err)
		return
	}
	_ = sess.Send(frame)
}
