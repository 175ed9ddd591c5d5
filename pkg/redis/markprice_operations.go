package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedMarkPrice 缓存的标记价格
type CachedMarkPrice struct {
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // Unix毫秒
}

// Age 距离缓存写入经过的时长
func (m *CachedMarkPrice) Age() time.Duration {
	return time.Since(time.UnixMilli(m.Timestamp))
}

// SetMarkPrice 保存标记价格缓存
func (c *Client) SetMarkPrice(ctx context.Context, currency string, price float64) error {
	key := markPriceKey(currency)

	err := c.rdb.HSet(ctx, key, map[string]interface{}{
		"currency":  currency,
		"price":     price,
		"timestamp": time.Now().UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("保存标记价格缓存失败: %v", err)
	}

	return nil
}

// GetMarkPrice 读取标记价格缓存，不存在时返回 nil
func (c *Client) GetMarkPrice(ctx context.Context, currency string) (*CachedMarkPrice, error) {
	key := markPriceKey(currency)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err == redis.Nil || len(result) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取标记价格缓存失败: %v", err)
	}

	price, err := strconv.ParseFloat(result["price"], 64)
	if err != nil || price <= 0 {
		return nil, nil
	}

	timestamp, err := strconv.ParseInt(result["timestamp"], 10, 64)
	if err != nil {
		return nil, nil
	}

	return &CachedMarkPrice{
		Currency:  currency,
		Price:     price,
		Timestamp: timestamp,
	}, nil
}
