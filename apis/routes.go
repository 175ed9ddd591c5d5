package apis

import (
	"github.com/gin-gonic/gin"

	"paper_perps/controllers"
	"paper_perps/core"
	"paper_perps/pkg/config"
	"paper_perps/pkg/database"
	"paper_perps/pkg/middleware"
	"paper_perps/pkg/redis"
	"paper_perps/pkg/websocket"
)

func SetupRoutes(r *gin.Engine, db *database.Database, store *redis.Client, settlement *core.Settlement) {
	// 创建控制器实例
	authController := controllers.NewAuthController(db, store)
	stateController := controllers.NewStateController(settlement)
	leaderboardController := controllers.NewLeaderboardController(settlement)
	userController := controllers.NewUserController(db)
	priceController := controllers.NewPriceController(store, config.GlobalConfig.TrackedCurrencies)

	// 初始化WebSocket管理器
	wsManager := websocket.GetGlobalWebSocketManager()

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Paper Perps API is running",
		})
	})

	// 跨域与认证中间件
	r.Use(middleware.Cors())
	r.Use(middleware.AuthMiddleware())

	// WebSocket路由
	r.GET("/ws", wsManager.HandleWebSocket)

	// 认证路由
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authController.Register) // 用户注册
		auth.POST("/login", authController.Login)       // 用户登录
		auth.POST("/logout", authController.Logout)     // 退出登录
		auth.GET("/me", authController.Me)              // 当前用户信息
	}

	// 业务路由
	api := r.Group("/api")
	{
		api.GET("/user-state", stateController.GetState)               // 获取钱包与持仓
		api.PUT("/user-state", stateController.Apply)                  // 执行账户操作
		api.GET("/leaderboard", leaderboardController.GetLeaderboard)  // 排行榜
		api.GET("/users-search", userController.SearchUsers)           // 用户搜索
		api.GET("/crypto-tokens", priceController.GetCryptoTokens)     // 最新标记价格
	}

	// 未匹配的API路由返回404
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "API endpoint not found"})
	})
}
