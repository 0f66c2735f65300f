package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromClient(rdb), mr
}

func TestBuildRevokedTokenKey(t *testing.T) {
	assert.Equal(t, "microblog:revoked:65f1c2a9e4b0a1b2c3d4e5f6", BuildRevokedTokenKey("65f1c2a9e4b0a1b2c3d4e5f6"))
}

func TestRevokedToken_SetGet(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	token, err := client.GetRevokedToken(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, client.SetRevokedToken(ctx, "u1", "tok1", time.Minute))

	token, err = client.GetRevokedToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
	assert.Equal(t, time.Minute, mr.TTL(BuildRevokedTokenKey("u1")))
}

func TestRevokedToken_Overwrite(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetRevokedToken(ctx, "u1", "tok1", time.Minute))
	require.NoError(t, client.SetRevokedToken(ctx, "u1", "tok2", time.Minute))

	token, err := client.GetRevokedToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
}

func TestRevokedToken_Expires(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetRevokedToken(ctx, "u1", "tok1", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	token, err := client.GetRevokedToken(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRevokedToken_Unreachable(t *testing.T) {
	client, mr := newTestClient(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.GetRevokedToken(ctx, "u1")
	assert.Error(t, err)
	assert.Error(t, client.SetRevokedToken(ctx, "u1", "tok1", time.Minute))
	assert.Error(t, client.Ping(ctx))
}
