package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/pkg/auth"
)

// AuthMiddleware 会话认证中间件。
// 浏览器走会话cookie，API调用方走 Authorization 头，/ws 走query参数。
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过健康检查和注册/登录/退出接口。
		// 退出必须免认证, 过期会话的用户才能清掉cookie
		path := c.Request.URL.Path
		if path == "/health" ||
			path == "/api/auth/register" ||
			path == "/api/auth/login" ||
			path == "/api/auth/logout" ||
			!strings.HasPrefix(path, "/api/") && path != "/ws" {
			c.Next()
			return
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"ok":      false,
				"message": "Unauthorized.",
				"code":    "MISSING_TOKEN",
			})
			c.Abort()
			return
		}

		// 验证token
		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			logrus.Warnf("Token验证失败: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{
				"ok":      false,
				"message": "Unauthorized.",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		// 将用户信息存储到上下文中
		c.Set("userID", claims.UserID)
		c.Set("userName", claims.Name)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if c.Request.URL.Path == "/ws" {
		return c.Query("token")
	}

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return ""
	}

	if cookie, err := c.Cookie(auth.SessionCookieName); err == nil {
		return cookie
	}
	return ""
}

// GetCurrentUserID 从上下文中获取当前用户ID
func GetCurrentUserID(c *gin.Context) int64 {
	if userID, exists := c.Get("userID"); exists {
		return userID.(int64)
	}
	return 0
}

// GetCurrentUserName 从上下文中获取当前用户名
func GetCurrentUserName(c *gin.Context) string {
	if name, exists := c.Get("userName"); exists {
		return name.(string)
	}
	return ""
}
