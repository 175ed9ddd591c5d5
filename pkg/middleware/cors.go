package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Cors 处理跨域请求
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 设置允许跨域的域名，*表示允许所有域名
		c.Header("Access-Control-Allow-Origin", "*")
		// 只放行路由实际使用的方法和请求头
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		// 会话cookie需要携带凭证
		c.Header("Access-Control-Allow-Credentials", "true")

		// 放行所有OPTIONS预检请求
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
