package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"bluegreen-cd/internal/pkg/jwt"
	"bluegreen-cd/pkg/constants"
	"bluegreen-cd/pkg/responses"
)

// AuthMiddleware JWT认证中间件, 审批等写操作要求操作员Token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			responses.ErrorWithCode(c, 401, "缺少Authorization Header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, constants.HeaderBearerPrefix) {
			responses.ErrorWithCode(c, 401, "Authorization格式错误")
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, constants.HeaderBearerPrefix)

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			responses.Error(c, err)
			c.Abort()
			return
		}

		// 必须是AccessToken
		if claims.Type != constants.JWTTypeAccess {
			responses.ErrorWithCode(c, 401, "无效的Token类型")
			c.Abort()
			return
		}

		c.Set("operator", claims.Operator)
		c.Set("role", claims.Role)

		c.Next()
	}
}
