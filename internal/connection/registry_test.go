package connection

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DurmazDev/microblog/internal/protocol"
	"github.com/DurmazDev/microblog/internal/snowflake"
)

func newTestSession(t *testing.T, node *snowflake.Node) *Session {
	t.Helper()
	return NewSession(node.Generate(), nil, Options{SendBufferSize: 8},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func TestRegistry_JoinLookup(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()
	s1 := newTestSession(t, node)

	assert.Nil(t, r.Join("u1", "alice", s1))

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, s1, got)
	assert.Equal(t, 1, r.Count())

	_, ok = r.Lookup("u2")
	assert.False(t, ok)
}

func TestRegistry_LastConnectedWins(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()
	s1 := newTestSession(t, node)
	s2 := newTestSession(t, node)

	r.Join("u1", "alice", s1)
	prev := r.Join("u1", "alice", s2)
	assert.Same(t, s1, prev)

	got, _ := r.Lookup("u1")
	assert.Same(t, s2, got)
	assert.Equal(t, 1, r.Count())

	// 旧会话断开不影响新会话的记录
	_, ok := r.LeaveBySession(s1)
	assert.False(t, ok)
	got, ok = r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestRegistry_RejoinSameSession(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()
	s1 := newTestSession(t, node)

	r.Join("u1", "alice", s1)
	assert.Nil(t, r.Join("u1", "alice2", s1))
	assert.Equal(t, []protocol.Presence{{Name: "alice2", UserID: "u1"}}, r.Snapshot())
}

func TestRegistry_Leave(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()
	s1 := newTestSession(t, node)

	r.Join("u1", "alice", s1)
	assert.True(t, r.Leave("u1"))
	assert.False(t, r.Leave("u1"))
	assert.Equal(t, 0, r.Count())

	_, ok := r.LeaveBySession(s1)
	assert.False(t, ok)
}

func TestRegistry_LeaveBySession(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()
	s1 := newTestSession(t, node)
	s2 := newTestSession(t, node)

	r.Join("u1", "alice", s1)
	r.Join("u2", "bob", s2)

	userID, ok := r.LeaveBySession(s1)
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, []protocol.Presence{{Name: "bob", UserID: "u2"}}, r.Snapshot())
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()

	for i := 0; i < 5; i++ {
		r.Join(fmt.Sprintf("u%d", i), fmt.Sprintf("user%d", i), newTestSession(t, node))
	}
	// 重连的用户保持原位置
	r.Join("u1", "user1", newTestSession(t, node))

	snap := r.Snapshot()
	require.Len(t, snap, 5)
	for i, p := range snap {
		assert.Equal(t, fmt.Sprintf("u%d", i), p.UserID)
	}

	// 快照是副本
	snap[0].Name = "changed"
	assert.Equal(t, "user0", r.Snapshot()[0].Name)
}

func TestRegistry_SnapshotEmpty(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestRegistry_Concurrent(t *testing.T) {
	node := newTestNode(t)
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newTestSession(t, node)
			userID := fmt.Sprintf("u%d", i%10)
			r.Join(userID, "name", s)
			r.Snapshot()
			if i%3 == 0 {
				r.LeaveBySession(s)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Count(), 10)
	// 每个用户最多一条
	seen := make(map[string]bool)
	for _, p := range r.Snapshot() {
		assert.False(t, seen[p.UserID])
		seen[p.UserID] = true
	}
}
