package room

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/DurmazDev/microblog/internal/connection"
	appErrors "github.com/DurmazDev/microblog/internal/errors"
	"github.com/DurmazDev/microblog/internal/protocol"
	"github.com/DurmazDev/microblog/internal/snowflake"
)

// Broker 房间成员关系与广播
// 房间在第一个成员加入时创建，最后一个成员离开时删除
type Broker struct {
	mu       sync.RWMutex
	rooms    map[string]map[snowflake.ID]*connection.Session
	sessions map[snowflake.ID]map[string]struct{} // 会话 -> 所在房间
	logger   *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		rooms:    make(map[string]map[snowflake.ID]*connection.Session),
		sessions: make(map[snowflake.ID]map[string]struct{}),
		logger:   logger.With("component", "room"),
	}
}

// JoinRoom 加入房间，重复加入无副作用
func (b *Broker) JoinRoom(session *connection.Session, room string) error {
	if room == "" {
		return appErrors.ErrEmptyRoomName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[snowflake.ID]*connection.Session)
		b.rooms[room] = members
	}
	members[session.ID()] = session

	joined, ok := b.sessions[session.ID()]
	if !ok {
		joined = make(map[string]struct{})
		b.sessions[session.ID()] = joined
	}
	joined[room] = struct{}{}
	return nil
}

// LeaveRoom 离开房间
func (b *Broker) LeaveRoom(session *connection.Session, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(session.ID(), room)
}

// LeaveAll 连接断开时离开所有房间，返回离开的房间
func (b *Broker) LeaveAll(session *connection.Session) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	joined := b.sessions[session.ID()]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		b.leaveLocked(session.ID(), room)
	}
	sort.Strings(left)
	return left
}

func (b *Broker) leaveLocked(id snowflake.ID, room string) {
	if members, ok := b.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	if joined, ok := b.sessions[id]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(b.sessions, id)
		}
	}
}

// IsMember 会话是否在房间中
func (b *Broker) IsMember(session *connection.Session, room string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.rooms[room][session.ID()]
	return ok
}

// Members 房间成员副本
func (b *Broker) Members(room string) []*connection.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := b.rooms[room]
	out := make([]*connection.Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// Count 房间数
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// Broadcast 把事件发给房间的每个成员（包括发送者），返回送达的会话数
// 只编码一次，锁外发送
func (b *Broker) Broadcast(room, event string, data any) int {
	members := b.Members(room)
	if len(members) == 0 {
		return 0
	}

	frame, err := protocol.Encode(event, data)
	if err != nil {
		b.logger.Error("Failed to encode broadcast", "room", room, "event", event, "error", err)
		return 0
	}

	reached := 0
	for _, s := range members {
		if err := s.Send(frame); err == nil {
			reached++
		}
	}

	b.logger.Debug("Broadcast", "room", room, "event", event, "members", len(members), "reached", reached)
	return reached
}
