package servers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paper_perps/apis"
	"paper_perps/core"
	"paper_perps/pkg/config"
	"paper_perps/pkg/database"
	"paper_perps/pkg/redis"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	port   string
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(db *database.Database, store *redis.Client, settlement *core.Settlement) *HTTPServer {
	// 设置Gin模式
	if config.GlobalConfig.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()

	// 设置路由
	apis.SetupRoutes(engine, db, store, settlement)

	port := config.GlobalConfig.HTTPPort

	return &HTTPServer{
		engine: engine,
		port:   port,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: engine,
		},
	}
}

// Start 启动HTTP服务器
func (s *HTTPServer) Start() {
	logrus.Infof("HTTP服务器启动在端口 %s", s.port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Fatalf("HTTP服务器启动失败: %v", err)
	}
}

// Shutdown 优雅关闭HTTP服务器
func (s *HTTPServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP服务器关闭失败: %v", err)
		return
	}
	logrus.Info("HTTP服务器已关闭")
}
