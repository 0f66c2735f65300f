package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/DurmazDev/microblog/pkg/response"
)

const identityKey = "identity"

// Middleware gin 鉴权中间件，认证通过后把 Identity 写入上下文
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.Check(c.Request.Context(), c.GetHeader("Authorization"), Source{
			Address: c.ClientIP(),
			Agent:   c.Request.UserAgent(),
		})
		if err != nil {
			response.Unauthorized(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity 从 context 获取 Identity
func GetIdentity(c *gin.Context) *Identity {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil
	}
	identity, _ := v.(*Identity)
	return identity
}
