package jwt

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

const issuer = "microblog"

// Claims JWT 声明，id/name 与后端用户序列化字段一致
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Service JWT 编解码服务
type Service struct {
	secretKey []byte
	expire    time.Duration
	now       func() time.Time
}

// NewService 创建 JWT 服务，expire <= 0 表示签发的 token 不带过期时间
func NewService(secretKey string, expire time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expire:    expire,
		now:       time.Now,
	}
}

// Encode 签发 token
// 每个 token 带唯一 jti，同一秒内为同一用户签发的 token 也不会相同
func (s *Service) Encode(userID, name string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if s.expire > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expire))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Decode 校验签名和过期时间并返回声明
func (s *Service) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	// 用户 ID 必须是合法的文档 ObjectId
	if !IsObjectID(claims.UserID) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Expire 返回签发 token 的有效期
func (s *Service) Expire() time.Duration {
	return s.expire
}

// IsObjectID 判断是否为 24 位十六进制的 ObjectId
func IsObjectID(id string) bool {
	if len(id) != 24 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
