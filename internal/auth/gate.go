package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/DurmazDev/microblog/internal/audit"
	appErrors "github.com/DurmazDev/microblog/internal/errors"
	"github.com/DurmazDev/microblog/internal/jwt"
)

// Reason 认证失败原因
type Reason int

const (
	ReasonMissingToken Reason = iota
	ReasonExpired
	ReasonInvalid
	ReasonRevoked
)

// AuthError 认证失败，Err 为对应的 AppError
type AuthError struct {
	Reason Reason
	Err    *appErrors.AppError
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Description 写入审计记录的描述
func (e *AuthError) Description() string {
	switch e.Reason {
	case ReasonMissingToken:
		return "missing token"
	case ReasonExpired:
		return "token expired"
	case ReasonRevoked:
		return "revoked token"
	default:
		return "invalid token"
	}
}

// AuditKind 缺少凭证记为未授权请求，其余记为认证失败
func (e *AuthError) AuditKind() audit.Kind {
	if e.Reason == ReasonMissingToken {
		return audit.KindUnauthorized
	}
	return audit.KindAuthFailure
}

func newAuthError(reason Reason, err *appErrors.AppError) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

// Identity 认证通过的调用方
type Identity struct {
	UserID string
	Name   string
	Token  string
}

// Source 请求来源，用于审计
type Source struct {
	Address string
	Agent   string
}

// TokenDecoder token 解码
type TokenDecoder interface {
	Decode(token string) (*jwt.Claims, error)
}

// RevocationChecker 失效 token 查询
type RevocationChecker interface {
	Check(ctx context.Context, userID, token string) bool
}

// Gate 鉴权拦截器，每个入站事件处理前调用一次
type Gate struct {
	decoder TokenDecoder
	revoked RevocationChecker
	audit   audit.Sink
	logger  *slog.Logger
}

// NewGate 创建鉴权拦截器，sink 可为 nil
func NewGate(decoder TokenDecoder, revoked RevocationChecker, sink audit.Sink, logger *slog.Logger) *Gate {
	return &Gate{
		decoder: decoder,
		revoked: revoked,
		audit:   sink,
		logger:  logger.With("component", "auth"),
	}
}

// Authenticate 解析 "Bearer <token>"，校验签名、过期和失效名单
func (g *Gate) Authenticate(ctx context.Context, bearer string) (*Identity, error) {
	if bearer == "" {
		return nil, newAuthError(ReasonMissingToken, appErrors.ErrTokenMissing)
	}

	token, ok := ParseBearer(bearer)
	if !ok {
		return nil, newAuthError(ReasonInvalid, appErrors.ErrTokenInvalid)
	}

	return g.AuthenticateToken(ctx, token)
}

// AuthenticateToken 校验已剥离 scheme 的 token
func (g *Gate) AuthenticateToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, newAuthError(ReasonMissingToken, appErrors.ErrTokenMissing)
	}

	claims, err := g.decoder.Decode(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newAuthError(ReasonExpired, appErrors.ErrTokenExpired.Wrap(err))
		}
		return nil, newAuthError(ReasonInvalid, appErrors.ErrTokenInvalid.Wrap(err))
	}

	if g.revoked.Check(ctx, claims.UserID, token) {
		return nil, newAuthError(ReasonRevoked, appErrors.ErrTokenRevoked)
	}

	return &Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Token:  token,
	}, nil
}

// Check 与 Authenticate 相同，失败时追加审计记录
func (g *Gate) Check(ctx context.Context, bearer string, src Source) (*Identity, error) {
	identity, err := g.Authenticate(ctx, bearer)
	if err != nil {
		g.recordFailure(ctx, err, src)
		return nil, err
	}
	return identity, nil
}

// CheckToken 与 AuthenticateToken 相同，失败时追加审计记录
func (g *Gate) CheckToken(ctx context.Context, token string, src Source) (*Identity, error) {
	identity, err := g.AuthenticateToken(ctx, token)
	if err != nil {
		g.recordFailure(ctx, err, src)
		return nil, err
	}
	return identity, nil
}

func (g *Gate) recordFailure(ctx context.Context, err error, src Source) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return
	}

	g.logger.Debug("Authentication failed",
		"reason", authErr.Description(),
		"source_address", src.Address)

	if g.audit == nil {
		return
	}
	if err := g.audit.Append(ctx, audit.Entry{
		Kind:          authErr.AuditKind(),
		SourceAddress: src.Address,
		ClientAgent:   src.Agent,
		Description:   authErr.Description(),
	}); err != nil {
		g.logger.Error("Failed to append audit entry", "error", err)
	}
}

// ParseBearer 从 Authorization 头提取 token，scheme 不区分大小写
func ParseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
