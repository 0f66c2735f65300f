package workerpool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestPool(workers, queue int) *Pool {
	return New(workers, queue, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPool_RunsTasks(t *testing.T) {
	pool := newTestPool(4, 16)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		assert.True(t, pool.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(10), count.Load())
	pool.Shutdown(context.Background())
	assert.Equal(t, uint64(10), pool.Stats().Submitted)
}

func TestPool_RecoversPanic(t *testing.T) {
	pool := newTestPool(1, 4)

	done := make(chan struct{})
	pool.Submit(context.Background(), func(ctx context.Context) { panic("boom") })
	pool.Submit(context.Background(), func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	pool.Shutdown(context.Background())
	assert.Equal(t, uint64(1), pool.Stats().Panicked)
}

func TestPool_TrySubmitQueueFull(t *testing.T) {
	pool := newTestPool(1, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	assert.True(t, pool.TrySubmit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	// worker 被占用，队列容量 1
	assert.True(t, pool.TrySubmit(func(ctx context.Context) {}))
	assert.False(t, pool.TrySubmit(func(ctx context.Context) {}))

	close(block)
	pool.Shutdown(context.Background())
	assert.Equal(t, uint64(1), pool.Stats().Rejected)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	pool := newTestPool(1, 8)

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		pool.Submit(context.Background(), func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			count.Add(1)
		})
	}
	pool.Shutdown(context.Background())

	assert.Equal(t, int32(5), count.Load())
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Shutdown(context.Background())

	assert.False(t, pool.Submit(context.Background(), func(ctx context.Context) {}))
	assert.False(t, pool.TrySubmit(func(ctx context.Context) {}))

	// 重复关闭无副作用
	pool.Shutdown(context.Background())
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	pool := newTestPool(1, 1)

	started := make(chan struct{})
	pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		pool.Shutdown(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not cancel running task")
	}
}
