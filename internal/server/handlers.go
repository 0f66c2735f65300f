package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DurmazDev/microblog/internal/audit"
	"github.com/DurmazDev/microblog/internal/auth"
	"github.com/DurmazDev/microblog/internal/connection"
	appErrors "github.com/DurmazDev/microblog/internal/errors"
	"github.com/DurmazDev/microblog/pkg/response"
)

// handleWebSocket 握手鉴权后升级连接
// token 取自 Authorization 头，浏览器无法设置头时取 ?token=
func (s *Server) handleWebSocket(c *gin.Context) {
	src := auth.Source{Address: c.ClientIP(), Agent: c.Request.UserAgent()}

	var (
		identity *auth.Identity
		err      error
	)
	if bearer := c.GetHeader("Authorization"); bearer == "" && c.Query("token") != "" {
		identity, err = s.deps.Gate.CheckToken(c.Request.Context(), c.Query("token"), src)
	} else {
		identity, err = s.deps.Gate.Check(c.Request.Context(), bearer, src)
	}
	if err != nil {
		response.Unauthorized(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sess := connection.NewSession(s.deps.Node.Generate(), conn, connection.Options{
		RemoteAddr:     src.Address,
		UserAgent:      src.Agent,
		SendBufferSize: s.cfg.SendBufferSize,
		MaxMessageSize: s.cfg.MaxMessageSize,
	}, s.logger)

	s.wg.Add(1)
	defer s.wg.Done()
	s.track(sess)
	defer s.untrack(sess)

	s.deps.Gateway.Connect(s.ctx, sess, identity)
	go sess.WritePump()

	_ = sess.ReadPump(func(frame []byte) {
		s.deps.Gateway.HandleFrame(s.ctx, sess, frame)
	})
	s.deps.Gateway.Disconnect(s.ctx, sess)
}

// handleLogout 失效当前 token
func (s *Server) handleLogout(c *gin.Context) {
	identity := auth.GetIdentity(c)

	if err := s.deps.Revoker.Block(c.Request.Context(), identity.UserID, identity.Token); err != nil {
		s.logger.Error("Failed to revoke token on logout", "user_id", identity.UserID, "error", err)
		response.ErrorFromAppError(c, appErrors.ErrStoreUnavailable.Wrap(err))
		return
	}

	s.appendAudit(c, "user logged out: "+identity.UserID)
	response.Accepted(c, "Successfully logged out.")
}

// handleRefresh 签发新 token 并失效旧 token
func (s *Server) handleRefresh(c *gin.Context) {
	identity := auth.GetIdentity(c)

	token, err := s.deps.Codec.Encode(identity.UserID, identity.Name)
	if err != nil {
		s.logger.Error("Failed to encode token", "user_id", identity.UserID, "error", err)
		response.ServerError(c)
		return
	}

	if err := s.deps.Revoker.Block(c.Request.Context(), identity.UserID, identity.Token); err != nil {
		s.logger.Error("Failed to revoke token on refresh", "user_id", identity.UserID, "error", err)
		response.ErrorFromAppError(c, appErrors.ErrStoreUnavailable.Wrap(err))
		return
	}

	response.Success(c, "Successfully refreshed token.", gin.H{
		"token": token,
		"user": gin.H{
			"id":   identity.UserID,
			"name": identity.Name,
		},
	})
}

// handleReady 就绪检查
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Health.IsHealthy(c.Request.Context()) {
		c.String(http.StatusOK, "OK")
		return
	}
	c.String(http.StatusServiceUnavailable, "Not Ready")
}

func (s *Server) appendAudit(c *gin.Context, description string) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Append(c.Request.Context(), audit.Entry{
		Kind:          audit.KindUserEvent,
		SourceAddress: c.ClientIP(),
		ClientAgent:   c.Request.UserAgent(),
		Description:   description,
	}); err != nil {
		s.logger.Error("Failed to append audit entry", "error", err)
	}
}
