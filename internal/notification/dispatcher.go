package notification

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DurmazDev/microblog/internal/connection"
	"github.com/DurmazDev/microblog/internal/protocol"
)

// Event 一次投递尝试构造的通知，不落库
type Event struct {
	ID           string
	Kind         Kind
	Message      string
	TargetUserID string
	Extra        map[string]string
}

// Payload 出站 notification 数据
func (e Event) Payload() protocol.Notification {
	return protocol.Notification{
		NotificationID: e.ID,
		Message:        e.Message,
		RoomID:         e.Extra[ExtraRoomID],
		PostID:         e.Extra[ExtraPostID],
	}
}

// Directory 在线用户查询
type Directory interface {
	Lookup(userID string) (*connection.Session, bool)
}

// Broadcaster 房间广播
type Broadcaster interface {
	Broadcast(room, event string, data any) int
}

// Dispatcher 构造并点对点投递通知，至多一次，不排队不重放
type Dispatcher struct {
	directory Directory
	rooms     Broadcaster
	newID     func() string
	logger    *slog.Logger
}

func NewDispatcher(directory Directory, rooms Broadcaster, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		rooms:     rooms,
		newID:     newEventID,
		logger:    logger.With("component", "notification"),
	}
}

// newEventID 32 位十六进制 uuid
func newEventID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// Build 构造发给 targetUserID 的通知；类型未知或缺少必需的附加字段时返回 false
func (d *Dispatcher) Build(kind Kind, actorName, targetUserID string, extra map[string]any) (Event, bool) {
	msg := kind.message(actorName)
	if msg == "" {
		return Event{}, false
	}

	ev := Event{
		ID:           d.newID(),
		Kind:         kind,
		Message:      msg,
		TargetUserID: targetUserID,
		Extra:        make(map[string]string, 1),
	}

	if key := kind.requiredExtra(); key != "" {
		v, ok := extraString(extra, key)
		if !ok {
			return Event{}, false
		}
		ev.Extra[key] = v
	}
	return ev, true
}

// extraString 附加字段转为字符串，缺失或为空视为不存在
func extraString(extra map[string]any, key string) (string, bool) {
	raw, ok := extra[key]
	if !ok || raw == nil {
		return "", false
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

// Deliver 投递给 targetUserID 的当前会话，目标不在线时静默丢弃
func (d *Dispatcher) Deliver(ev Event, targetUserID string) bool {
	session, ok := d.directory.Lookup(targetUserID)
	if !ok {
		d.logger.Debug("Notification target offline",
			"target_user_id", targetUserID,
			"kind", ev.Kind.String())
		return false
	}
	ev.TargetUserID = targetUserID

	frame, err := protocol.Encode(protocol.EventNotification, ev.Payload())
	if err != nil {
		d.logger.Error("Failed to encode notification", "error", err)
		return false
	}
	if err := session.Send(frame); err != nil {
		d.logger.Debug("Notification dropped",
			"target_user_id", targetUserID,
			"error", err)
		return false
	}
	return true
}

// Notify 按线上编码构造并投递，供 set:notification 和 NATS 入口使用
func (d *Dispatcher) Notify(code int, actorName, targetUserID string, extra map[string]any) bool {
	kind, ok := ParseKind(code)
	if !ok {
		d.logger.Debug("Unknown notification type", "event_type", code)
		return false
	}

	ev, ok := d.Build(kind, actorName, targetUserID, extra)
	if !ok {
		d.logger.Debug("Notification dropped, missing extra", "kind", kind.String())
		return false
	}
	return d.Deliver(ev, targetUserID)
}

// InviteToChat 私聊邀请：先向被邀请人投递通知，再向房间广播邀请
// 被邀请人不在线时只跳过通知，广播照常进行；返回通知是否送达
func (d *Dispatcher) InviteToChat(room string, invite protocol.PrivateChatInvite) bool {
	delivered := false
	if _, online := d.directory.Lookup(invite.InvitedUserID); online {
		if ev, ok := d.Build(KindChatRequest, invite.Name, invite.InvitedUserID, map[string]any{ExtraRoomID: invite.PrivateRoomID}); ok {
			delivered = d.Deliver(ev, invite.InvitedUserID)
		}
	}

	d.rooms.Broadcast(room, protocol.EventPrivateChatRequest, invite)
	return delivered
}
