package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DurmazDev/microblog/internal/workerpool"
)

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

type execCall struct {
	sql  string
	args []any
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

// recordingSink 记录收到的审计条目
type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *recordingSink) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
	assert.Equal(t, "authentication_failure", KindAuthFailure.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

func TestLogger_Append(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Append(context.Background(), Entry{
		Kind:          KindAuthFailure,
		SourceAddress: "10.0.0.1",
		ClientAgent:   "curl/8.0",
		Description:   "token expired",
	}))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"kind":"authentication_failure"`)
	assert.Contains(t, out, `"source_address":"10.0.0.1"`)
}

func TestPostgres_Migrate(t *testing.T) {
	db := &fakeExecer{}
	sink := newPostgres(db)

	require.NoError(t, sink.Migrate(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS audit_logs")
}

func TestPostgres_Append(t *testing.T) {
	db := &fakeExecer{}
	sink := newPostgres(db)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	require.NoError(t, sink.Append(context.Background(), Entry{
		Kind:          KindUserEvent,
		SourceAddress: "10.0.0.1",
		ClientAgent:   "ua",
		Description:   "connected",
	}))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "INSERT INTO audit_logs")
	assert.Equal(t, []any{1, "10.0.0.1", "ua", "connected", fixed}, db.calls[0].args)
}

func TestPostgres_AppendError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	sink := newPostgres(db)

	err := sink.Append(context.Background(), Entry{Kind: KindSystemError})
	assert.ErrorContains(t, err, "connection refused")
}

func TestAsync_Append(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := workerpool.New(1, 8, logger)
	inner := &recordingSink{err: errors.New("db down")}
	sink := NewAsync(inner, pool, time.Second, logger)

	for i := 0; i < 3; i++ {
		// 底层写入失败不会传给调用方
		assert.NoError(t, sink.Append(context.Background(), Entry{Kind: KindUserEvent}))
	}
	pool.Shutdown(context.Background())

	assert.Equal(t, 3, inner.Len())
	for _, e := range inner.entries {
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestAsync_DropsWhenClosed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := workerpool.New(1, 1, logger)
	pool.Shutdown(context.Background())

	inner := &recordingSink{}
	sink := NewAsync(inner, pool, time.Second, logger)

	assert.NoError(t, sink.Append(context.Background(), Entry{Kind: KindUserEvent}))
	assert.Equal(t, 0, inner.Len())
}
