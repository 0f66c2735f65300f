package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store 持久共享存储，跨实例的失效 token 以它为准
type Store interface {
	GetRevokedToken(ctx context.Context, userID string) (string, error)
	SetRevokedToken(ctx context.Context, userID, token string, ttl time.Duration) error
}

// Policy 缓存达到容量时的淘汰策略
type Policy string

const (
	// PolicyReset 达到容量时清空所有已写入持久存储的记录
	PolicyReset Policy = "reset"
	// PolicyExpiry 达到容量时按过期时间从早到晚淘汰，直到低于容量
	PolicyExpiry Policy = "expiry"
)

// ParsePolicy 解析配置中的策略名，空字符串视为 reset
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReset:
		return PolicyReset, nil
	case PolicyExpiry:
		return PolicyExpiry, nil
	default:
		return "", fmt.Errorf("revocation: unknown eviction policy %q", s)
	}
}

// Record 每个用户只保留最近一次失效的 token
type Record struct {
	UserID    string
	Token     string
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt 记录过期时间
func (r Record) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TTL)
}

// Expired now 晚于 created_at + ttl 时过期
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt())
}

// Options 缓存配置
type Options struct {
	Capacity     int           // 最大条目数
	TTL          time.Duration // 新记录的 TTL
	StoreTimeout time.Duration // 单次存储调用超时
	Policy       Policy
	Now          func() time.Time
	Logger       *slog.Logger
}

// SyncResult 一次同步的统计
type SyncResult struct {
	Evicted int  // 本地过期被移除
	Pushed  int  // 成功刷新到持久存储
	Failed  int  // 存储调用失败，下次同步重试
	Dropped int  // 因容量策略被丢弃
	Reset   bool // reset 策略是否生效
}

// Cache 内存中的失效 token 表
// 所有方法并发安全；同步任务在锁外访问持久存储，不阻塞登出和鉴权
type Cache struct {
	mu      sync.Mutex
	records map[string]Record

	store        Store
	capacity     int
	ttl          time.Duration
	storeTimeout time.Duration
	policy       Policy
	now          func() time.Time
	logger       *slog.Logger
}

// NewCache 创建失效 token 缓存
func NewCache(store Store, opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = 10000
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReset
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Cache{
		records:      make(map[string]Record, opts.Capacity),
		store:        store,
		capacity:     opts.Capacity,
		ttl:          opts.TTL,
		storeTimeout: opts.StoreTimeout,
		policy:       opts.Policy,
		now:          opts.Now,
		logger:       opts.Logger.With("component", "revocation"),
	}
}

// Block 记录用户失效的 token，覆盖该用户之前的记录
// 缓存已满且该用户没有记录时直接写入持久存储，返回的错误只来自这条路径
func (c *Cache) Block(ctx context.Context, userID, token string) error {
	rec := Record{
		UserID:    userID,
		Token:     token,
		CreatedAt: c.now(),
		TTL:       c.ttl,
	}

	c.mu.Lock()
	_, exists := c.records[userID]
	if exists || len(c.records) < c.capacity {
		c.records[userID] = rec
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if err := c.store.SetRevokedToken(storeCtx, userID, token, rec.TTL); err != nil {
		c.logger.Error("Failed to write through revoked token",
			"user_id", userID,
			"error", err)
		return err
	}

	c.logger.Debug("Cache full, revoked token written through", "user_id", userID)
	return nil
}

// Check 判断 token 是否已失效
// 本地有该用户的记录时只比较本地；否则回退到持久存储。
// 存储不可达或超时按未失效处理（可用性优先）
func (c *Cache) Check(ctx context.Context, userID, token string) bool {
	c.mu.Lock()
	rec, ok := c.records[userID]
	c.mu.Unlock()

	if ok {
		return rec.Token == token
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	stored, err := c.store.GetRevokedToken(storeCtx, userID)
	if err != nil {
		c.logger.Warn("Revocation store lookup failed, treating token as valid",
			"user_id", userID,
			"error", err)
		return false
	}

	return stored != "" && stored == token
}

// Sync 由定时任务调用
// 过期记录从内存移除，其余记录按剩余有效期刷新到持久存储，两边同时过期；
// 之后若条目数达到容量，按策略淘汰。只淘汰本次已写入存储且之后未被覆盖的记录，
// 推送期间新增、被覆盖或推送失败的记录保留到下次同步
func (c *Cache) Sync(ctx context.Context) SyncResult {
	var result SyncResult
	now := c.now()

	c.mu.Lock()
	live := make([]Record, 0, len(c.records))
	for userID, rec := range c.records {
		if rec.Expired(now) {
			delete(c.records, userID)
			result.Evicted++
			continue
		}
		live = append(live, rec)
	}
	c.mu.Unlock()

	pushed := make([]Record, 0, len(live))
	for _, rec := range live {
		if ctx.Err() != nil {
			result.Failed++
			continue
		}
		// 恰好到期的记录下次同步移除
		remaining := rec.ExpiresAt().Sub(now)
		if remaining <= 0 {
			continue
		}

		storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
		err := c.store.SetRevokedToken(storeCtx, rec.UserID, rec.Token, remaining)
		cancel()

		if err != nil {
			result.Failed++
			c.logger.Warn("Failed to sync revoked token, will retry next tick",
				"user_id", rec.UserID,
				"error", err)
			continue
		}
		pushed = append(pushed, rec)
	}
	result.Pushed = len(pushed)

	c.mu.Lock()
	if len(c.records) >= c.capacity {
		synced := c.unchangedLocked(pushed)
		switch c.policy {
		case PolicyExpiry:
			result.Dropped = c.evictSoonestLocked(synced, len(c.records)-c.capacity+1)
		default:
			for _, rec := range synced {
				delete(c.records, rec.UserID)
			}
			result.Dropped = len(synced)
			result.Reset = len(synced) > 0
		}
	}
	c.mu.Unlock()

	return result
}

// unchangedLocked 返回当前仍是同一条记录的已推送记录，调用方需持有锁
func (c *Cache) unchangedLocked(pushed []Record) []Record {
	out := make([]Record, 0, len(pushed))
	for _, rec := range pushed {
		cur, ok := c.records[rec.UserID]
		if ok && cur.Token == rec.Token && cur.CreatedAt.Equal(rec.CreatedAt) {
			out = append(out, rec)
		}
	}
	return out
}

// evictSoonestLocked 从候选中淘汰 n 条最早过期的记录，调用方需持有锁
func (c *Cache) evictSoonestLocked(candidates []Record, n int) int {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt().Before(candidates[j].ExpiresAt())
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, rec := range candidates[:n] {
		delete(c.records, rec.UserID)
	}
	return n
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Capacity 配置的最大条目数
func (c *Cache) Capacity() int {
	return c.capacity
}
