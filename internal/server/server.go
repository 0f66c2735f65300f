package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/DurmazDev/microblog/internal/audit"
	"github.com/DurmazDev/microblog/internal/auth"
	"github.com/DurmazDev/microblog/internal/config"
	"github.com/DurmazDev/microblog/internal/connection"
	"github.com/DurmazDev/microblog/internal/gateway"
	"github.com/DurmazDev/microblog/internal/health"
	"github.com/DurmazDev/microblog/internal/jwt"
	"github.com/DurmazDev/microblog/internal/snowflake"
)

// Revoker 登出和刷新时失效旧 token
type Revoker interface {
	Block(ctx context.Context, userID, token string) error
}

// Deps 服务依赖
type Deps struct {
	Gate    *auth.Gate
	Gateway *gateway.Gateway
	Codec   *jwt.Service
	Revoker Revoker
	Health  *health.Checker
	Node    *snowflake.Node
	Audit   audit.Sink
}

// Server HTTP + WebSocket 服务
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	engine     *gin.Engine
	httpServer *http.Server

	// ctx 在 Shutdown 时取消，传给每个会话的事件处理
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[snowflake.ID]*connection.Session
	wg       sync.WaitGroup
}

// New 创建服务并注册路由
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[snowflake.ID]*connection.Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(cfg.AllowedOrigins, origin)
		},
	}
	s.engine = s.setupRouter()
	return s
}

// setupRouter 设置路由
func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(Logger(s.logger))
	r.Use(CORS(s.cfg.AllowedOrigins))

	r.GET("/health", gin.WrapH(s.deps.Health))
	r.GET("/ready", s.handleReady)
	r.GET("/ws", s.handleWebSocket)

	authGroup := r.Group("/auth")
	authGroup.Use(s.deps.Gate.Middleware())
	{
		authGroup.DELETE("/logout", s.handleLogout)
		authGroup.POST("/refresh", s.handleRefresh)
	}

	return r
}

// Handler 返回路由，供测试使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 启动服务（阻塞）
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}

	s.logger.Info("Gateway server starting", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收新连接，关闭所有会话并等待读循环退出
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.cancel()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Gateway server stopped")
	case <-ctx.Done():
		s.logger.Warn("Gateway shutdown timed out with open sessions")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) track(sess *connection.Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *connection.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}
