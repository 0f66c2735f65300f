package protocol

import (
	"encoding/json"
	"fmt"

	appErrors "github.com/DurmazDev/microblog/internal/errors"
)

// 事件名，入站与出站共用
const (
	EventConnect            = "connect"
	EventJoin               = "join"
	EventLeave              = "leave"
	EventMessage            = "message"
	EventActiveUsers        = "active_users"
	EventPrivateChatRequest = "private_chat_request"
	EventSetNotification    = "set:notification"
	EventNotification       = "notification"
)

// Envelope 帧格式 {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 编码一个出站帧
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode 解码入站帧，event 不能为空
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, appErrors.ErrInvalidEvent.Wrap(err)
	}
	if env.Event == "" {
		return nil, appErrors.ErrInvalidEvent.Wrap(fmt.Errorf("missing event name"))
	}
	return &env, nil
}

// Bind 把 data 解到 v，data 缺省时 v 保持零值
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return appErrors.ErrInvalidEvent.Wrap(fmt.Errorf("bind %s: %w", e.Event, err))
	}
	return nil
}

// ============== 入站 ==============

// RoomRequest join / leave
type RoomRequest struct {
	Room string `json:"room"`
}

// MessageRequest message
type MessageRequest struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// PrivateChatRequest private_chat_request
type PrivateChatRequest struct {
	Room          string `json:"room"`
	PrivateRoomID string `json:"private_room_id"`
	InvitedUserID string `json:"invited_user_id"`
}

// SetNotificationRequest set:notification
// EventType 为指针，用来区分缺省和 0（FOLLOWED）
type SetNotificationRequest struct {
	UserID         string         `json:"user_id"`
	EventType      *int           `json:"event_type"`
	AdditionalData map[string]any `json:"additional_data"`
}

// ============== 出站 ==============

// Presence 在线用户
type Presence struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

// ActiveUsers active_users
type ActiveUsers struct {
	Users []Presence `json:"users"`
}

// UserEvent join / leave
type UserEvent struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

// ChatMessage message
type ChatMessage struct {
	Name    string `json:"name"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// PrivateChatInvite private_chat_request
type PrivateChatInvite struct {
	Name          string `json:"name"`
	UserID        string `json:"user_id"`
	PrivateRoomID string `json:"private_room_id"`
	InvitedUserID string `json:"invited_user_id"`
}

// Notification notification
type Notification struct {
	NotificationID string `json:"notification_id"`
	Message        string `json:"message"`
	RoomID         string `json:"room_id,omitempty"`
	PostID         string `json:"post_id,omitempty"`
}
