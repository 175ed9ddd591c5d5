package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"paper_perps/core"
	"paper_perps/pkg/config"
	"paper_perps/pkg/database"
	"paper_perps/pkg/priceapi"
	"paper_perps/pkg/redis"
	"paper_perps/pkg/telegram"
	"paper_perps/pkg/websocket"
	"paper_perps/servers"
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.Info("启动模拟合约交易服务...")

	// 加载配置
	config.LoadConfig()

	// 初始化Telegram客户端
	if err := telegram.InitTelegram(); err != nil {
		logrus.Errorf("Telegram init fail: %v", err)
	}

	// 初始化MySQL
	db, err := database.New(config.GlobalConfig)
	if err != nil {
		if telegram.GlobalTelegramClient != nil {
			telegram.GlobalTelegramClient.SendServiceStatus("error", fmt.Sprintf("MySQL初始化失败\n错误: %v\n服务即将停止", err))
		}
		logrus.Fatalf("MySQL init fail: %v", err)
	}

	// 初始化Redis
	store, err := redis.New(config.GlobalConfig)
	if err != nil {
		if telegram.GlobalTelegramClient != nil {
			telegram.GlobalTelegramClient.SendServiceStatus("error", fmt.Sprintf("Redis初始化失败\n错误: %v\n服务即将停止", err))
		}
		logrus.Fatalf("Redis init fail: %v", err)
	}

	// 初始化行情源与价格解析器
	feed := priceapi.New(config.GlobalConfig.PriceAPIBaseURL, config.GlobalConfig.PriceFetchTimeout)
	resolver := core.NewPriceResolver(feed, store, config.GlobalConfig.MaxPriceDeviation)

	// 初始化结算引擎
	settlement := core.NewSettlement(store, db, resolver)

	// 初始化WebSocket管理器
	websocket.InitializeGlobalWebSocketManager()

	// 启动价格监控
	core.InitPriceMonitor(feed, store, config.GlobalConfig.TrackedCurrencies, config.GlobalConfig.PriceUpdateInterval)
	core.GlobalPriceMonitor.Start()

	// 创建HTTP服务器
	server := servers.NewHTTPServer(db, store, settlement)
	go func() {
		server.Start()
	}()

	if telegram.GlobalTelegramClient != nil {
		telegram.GlobalTelegramClient.SendServiceStatus("started", "模拟合约交易服务已启动")
	}
	logrus.Info("模拟合约交易服务启动完成!")

	// 优雅关闭
	gracefulShutdown(server)
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *servers.HTTPServer) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("正在关闭模拟合约交易服务...")

	// 停止HTTP服务器
	if server != nil {
		server.Shutdown()
	}

	// 停止价格监控
	if core.GlobalPriceMonitor != nil {
		core.GlobalPriceMonitor.Stop()
	}

	// 发送服务完全停止的Telegram通知
	if telegram.GlobalTelegramClient != nil {
		if err := telegram.GlobalTelegramClient.SendServiceStatus("stopped", "模拟合约交易服务已关闭"); err != nil {
			logrus.Errorf("发送关闭完成通知失败: %v", err)
		}
	}

	logrus.Info("模拟合约交易服务已关闭")
}
