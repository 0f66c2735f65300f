package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/DurmazDev/microblog/internal/audit"
	"github.com/DurmazDev/microblog/internal/auth"
	"github.com/DurmazDev/microblog/internal/config"
	"github.com/DurmazDev/microblog/internal/connection"
	"github.com/DurmazDev/microblog/internal/gateway"
	"github.com/DurmazDev/microblog/internal/health"
	"github.com/DurmazDev/microblog/internal/jwt"
	mbNats "github.com/DurmazDev/microblog/internal/nats"
	"github.com/DurmazDev/microblog/internal/notification"
	"github.com/DurmazDev/microblog/internal/redis"
	"github.com/DurmazDev/microblog/internal/revocation"
	"github.com/DurmazDev/microblog/internal/room"
	"github.com/DurmazDev/microblog/internal/server"
	"github.com/DurmazDev/microblog/internal/snowflake"
	"github.com/DurmazDev/microblog/internal/workerpool"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to config file")
	pflag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	if dump, err := cfg.Redacted(); err == nil {
		logger.Debug("Effective config", "config", string(dump))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 Snowflake 节点
	node, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		logger.Error("Failed to create snowflake node", "error", err)
		os.Exit(1)
	}

	// 连接 Redis
	redisClient := redis.NewClient(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("Redis not reachable, revocation checks fail open", "addr", cfg.Redis.Addr, "error", err)
	} else {
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	}

	// 失效 token 缓存
	policy, err := revocation.ParsePolicy(cfg.Revocation.Policy)
	if err != nil {
		logger.Error("Invalid revocation policy", "error", err)
		os.Exit(1)
	}
	cache := revocation.NewCache(redisClient, revocation.Options{
		Capacity:     cfg.Revocation.Capacity,
		TTL:          cfg.Revocation.TTL,
		StoreTimeout: cfg.Redis.OpTimeout,
		Policy:       policy,
		Logger:       logger,
	})
	go revocation.NewSyncer(cache, cfg.Revocation.SyncInterval, logger).Start(ctx)

	pool := workerpool.New(cfg.Worker.Workers, cfg.Worker.QueueSize, logger)

	healthOpts := health.Options{Redis: redisClient, Revoked: cache}

	// 审计日志：配置了数据库时写入 PostgreSQL
	var sink audit.Sink = audit.NewLogger(logger)
	if cfg.Database.Enabled() {
		db, err := audit.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store := audit.NewPostgres(db)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate audit table", "error", err)
			os.Exit(1)
		}
		sink = audit.NewAsync(store, pool, cfg.Redis.OpTimeout, logger)
		healthOpts.Database = db
		logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)
	}

	// 初始化服务
	codec := jwt.NewService(cfg.Auth.TokenSecret, cfg.Auth.TokenExpire)
	gate := auth.NewGate(codec, cache, sink, logger)
	registry := connection.NewRegistry()
	rooms := room.NewBroker(logger)
	dispatcher := notification.NewDispatcher(registry, rooms, logger)
	gw := gateway.New(gate, registry, rooms, dispatcher, sink, logger)
	healthOpts.Connections = registry

	// 订阅服务端通知
	var subscriber *mbNats.NotificationSubscriber
	if cfg.NATS.Enabled() {
		natsClient, err := mbNats.NewClient(cfg.NATS, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)

		subscriber = mbNats.NewNotificationSubscriber(natsClient.Conn(), dispatcher, pool, logger)
		if err := subscriber.Start(); err != nil {
			logger.Error("Failed to start subscriber", "error", err)
			os.Exit(1)
		}
		healthOpts.NATS = natsClient
	}

	srv := server.New(cfg.Server, server.Deps{
		Gate:    gate,
		Gateway: gw,
		Codec:   codec,
		Revoker: cache,
		Health:  health.NewChecker(healthOpts),
		Node:    node,
		Audit:   sink,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("Gateway server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	if subscriber != nil {
		subscriber.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	cancel()
	// 退出前把未过期的失效记录写回 Redis
	result := cache.Sync(shutdownCtx)
	logger.Info("Revocation cache flushed", "pushed", result.Pushed, "failed", result.Failed)

	pool.Shutdown(shutdownCtx)
	logger.Info("Gateway stopped")
}

// newLogger 按配置创建 slog 日志
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
