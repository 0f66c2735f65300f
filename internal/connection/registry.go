package connection

import (
	"sort"
	"sync"

	"github.com/DurmazDev/microblog/internal/protocol"
	"github.com/DurmazDev/microblog/internal/snowflake"
)

type entry struct {
	userID  string
	name    string
	session *Session
	seq     uint64
}

// Registry 在线用户表，每个用户最多一条记录，后连接的会话覆盖先前的
type Registry struct {
	mu        sync.RWMutex
	byUser    map[string]*entry
	bySession map[snowflake.ID]string
	seq       uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:    make(map[string]*entry),
		bySession: make(map[snowflake.ID]string),
	}
}

// Join 写入或更新用户记录，返回被替换的旧会话
// 已在线的用户保持原来的列表位置
func (r *Registry) Join(userID, name string, session *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byUser[userID]; ok {
		prev := e.session
		if prev != nil && prev != session {
			delete(r.bySession, prev.ID())
		}
		e.name = name
		e.session = session
		r.bySession[session.ID()] = userID
		if prev == session {
			return nil
		}
		return prev
	}

	r.seq++
	r.byUser[userID] = &entry{
		userID:  userID,
		name:    name,
		session: session,
		seq:     r.seq,
	}
	r.bySession[session.ID()] = userID
	return nil
}

// Leave 按用户移除
func (r *Registry) Leave(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(r.byUser, userID)
	if e.session != nil {
		delete(r.bySession, e.session.ID())
	}
	return true
}

// LeaveBySession 移除持有该会话的记录
// 用户已被新会话覆盖时不做任何事
func (r *Registry) LeaveBySession(session *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.bySession[session.ID()]
	if !ok {
		return "", false
	}
	delete(r.bySession, session.ID())

	if e, ok := r.byUser[userID]; ok && e.session == session {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Lookup 查找用户当前会话
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Snapshot 按加入顺序返回在线用户副本
func (r *Registry) Snapshot() []protocol.Presence {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byUser))
	for _, e := range r.byUser {
		entries = append(entries, e)
	}
	users := make([]protocol.Presence, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		users = append(users, protocol.Presence{Name: e.name, UserID: e.userID})
	}
	r.mu.RUnlock()

	return users
}

// Count 在线用户数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
