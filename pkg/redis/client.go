package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"paper_perps/pkg/config"
)

// Client 显式构造的Redis客户端，持有账本行和价格缓存
type Client struct {
	rdb *redis.Client
}

// New 创建Redis客户端并测试连接
func New(cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("redis连接失败: %v", err)
	}

	logrus.Info("Redis连接成功")
	return &Client{rdb: rdb}, nil
}

// Redis键名常量
const (
	KeyLedger    = "ledger"     // 账本行键前缀
	KeyMarkPrice = "mark_price" // 标记价格缓存键前缀
)

func ledgerKey(userID int64) string {
	return fmt.Sprintf("%s:%d", KeyLedger, userID)
}

func markPriceKey(currency string) string {
	return fmt.Sprintf("%s:%s", KeyMarkPrice, currency)
}
