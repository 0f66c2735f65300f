package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DurmazDev/microblog/internal/config"
)

const (
	// RevokedTokenKeyPrefix 已失效 token 的 Key 前缀
	// Key: microblog:revoked:{userId}, Value: 最近一次失效的 token
	RevokedTokenKeyPrefix = "microblog:revoked:"
)

// BuildRevokedTokenKey 构建用户失效 token 的 Key
func BuildRevokedTokenKey(userID string) string {
	return RevokedTokenKeyPrefix + userID
}

// Client Redis 客户端，作为跨实例的失效 token 持久存储
type Client struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient 创建 Redis 客户端
func NewClient(cfg config.RedisConfig) *Client {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	return NewFromClient(client)
}

// NewFromClient 包装已有的 go-redis 客户端
func NewFromClient(client *redis.Client) *Client {
	return &Client{
		client: client,
		logger: slog.Default().With("component", "redis"),
	}
}

// GetRevokedToken 获取用户最近一次失效的 token，不存在时返回空字符串
func (c *Client) GetRevokedToken(ctx context.Context, userID string) (string, error) {
	token, err := c.client.Get(ctx, BuildRevokedTokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// SetRevokedToken 写入（覆盖）用户失效的 token 并设置 TTL
func (c *Client) SetRevokedToken(ctx context.Context, userID, token string, ttl time.Duration) error {
	err := c.client.Set(ctx, BuildRevokedTokenKey(userID), token, ttl).Err()
	if err == nil {
		c.logger.Debug("Stored revoked token", "user_id", userID, "ttl", ttl)
	}
	return err
}

// Ping 检查 Redis 连接
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}
