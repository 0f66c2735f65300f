package gateway

import (
	"context"

	"github.com/DurmazDev/microblog/internal/auth"
	"github.com/DurmazDev/microblog/internal/connection"
	"github.com/DurmazDev/microblog/internal/protocol"
)

// handleConnect 显式 connect 事件，重新登记在线
func (g *Gateway) handleConnect(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	g.registry.Join(id.UserID, id.Name, sess)
}

func (g *Gateway) handleJoin(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	var req protocol.RoomRequest
	if !g.bind(env, &req) {
		return
	}

	if err := g.rooms.JoinRoom(sess, req.Room); err != nil {
		g.logger.Debug("Join rejected", "user_id", id.UserID, "error", err)
		return
	}
	g.registry.Join(id.UserID, id.Name, sess)
	sess.MarkJoined()

	g.rooms.Broadcast(req.Room, protocol.EventActiveUsers, protocol.ActiveUsers{Users: g.registry.Snapshot()})
	g.rooms.Broadcast(req.Room, protocol.EventJoin, protocol.UserEvent{Name: id.Name, UserID: id.UserID})
}

// handleLeave 以认证身份移出在线表
func (g *Gateway) handleLeave(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	var req protocol.RoomRequest
	if !g.bind(env, &req) {
		return
	}

	g.registry.Leave(id.UserID)
	if req.Room == "" {
		return
	}
	g.rooms.LeaveRoom(sess, req.Room)

	g.rooms.Broadcast(req.Room, protocol.EventActiveUsers, protocol.ActiveUsers{Users: g.registry.Snapshot()})
	g.rooms.Broadcast(req.Room, protocol.EventLeave, protocol.UserEvent{Name: id.Name, UserID: id.UserID})
}

// handleMessage 只有房间成员可以发言，消息也回给发送者
func (g *Gateway) handleMessage(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	var req protocol.MessageRequest
	if !g.bind(env, &req) {
		return
	}
	if req.Room == "" || req.Message == "" {
		return
	}
	if !g.rooms.IsMember(sess, req.Room) {
		g.logger.Debug("Message to non-member room dropped", "user_id", id.UserID, "room", req.Room)
		return
	}

	g.rooms.Broadcast(req.Room, protocol.EventMessage, protocol.ChatMessage{
		Name:    id.Name,
		UserID:  id.UserID,
		Message: req.Message,
	})
}

func (g *Gateway) handleActiveUsers(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	g.reply(sess, protocol.EventActiveUsers, protocol.ActiveUsers{Users: g.registry.Snapshot()})
}

func (g *Gateway) handlePrivateChatRequest(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	var req protocol.PrivateChatRequest
	if !g.bind(env, &req) {
		return
	}
	if req.Room == "" {
		return
	}

	g.dispatcher.InviteToChat(req.Room, protocol.PrivateChatInvite{
		Name:          id.Name,
		UserID:        id.UserID,
		PrivateRoomID: req.PrivateRoomID,
		InvitedUserID: req.InvitedUserID,
	})
}

func (g *Gateway) handleSetNotification(ctx context.Context, sess *connection.Session, id *auth.Identity, env *protocol.Envelope) {
	var req protocol.SetNotificationRequest
	if !g.bind(env, &req) {
		return
	}
	if req.EventType == nil || req.UserID == "" {
		return
	}

	g.dispatcher.Notify(*req.EventType, id.Name, req.UserID, req.AdditionalData)
}
