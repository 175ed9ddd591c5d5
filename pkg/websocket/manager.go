package websocket

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// GlobalWebSocketManager 全局WebSocket管理器实例，价格监控和路由共用
var GlobalWebSocketManager *WebSocketManager

var initOnce sync.Once

// InitializeGlobalWebSocketManager 初始化全局WebSocket管理器并启动Hub
func InitializeGlobalWebSocketManager() {
	initOnce.Do(func() {
		GlobalWebSocketManager = NewWebSocketManager()
		GlobalWebSocketManager.Start()
		logrus.Info("WebSocket管理器已启动")
	})
}

// GetGlobalWebSocketManager 获取全局WebSocket管理器实例
func GetGlobalWebSocketManager() *WebSocketManager {
	if GlobalWebSocketManager == nil {
		InitializeGlobalWebSocketManager()
	}
	return GlobalWebSocketManager
}
