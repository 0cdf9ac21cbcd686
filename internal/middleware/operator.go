package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperatorAuth 运营方令牌认证中间件
//
// 管理端点使用静态令牌认证，令牌由部署配置下发。
type OperatorAuth struct {
	token string
}

// NewOperatorAuth 创建运营方认证中间件
func NewOperatorAuth(token string) *OperatorAuth {
	return &OperatorAuth{
		token: token,
	}
}

// RequireOperator 要求运营方令牌认证
func (m *OperatorAuth) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Operator-Token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing operator token",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid operator token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
