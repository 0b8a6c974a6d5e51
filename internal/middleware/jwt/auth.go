package jwt

import (
	"strings"

	"ChatRelay/pkg/back"
	"ChatRelay/pkg/util/myjwt"
	"ChatRelay/pkg/xerr"

	"github.com/gin-gonic/gin"
)

// Auth 校验 Bearer token，把用户 id 与显示名放入上下文
func Auth(signer *myjwt.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			back.Error(c, xerr.Unauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		claims, err := signer.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("uuid", claims.Uuid)
		c.Set("username", claims.Username)
		c.Next()
	}
}
