package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"paper_perps/pkg/telegram"
	"paper_perps/pkg/websocket"
)

// PriceMonitor 周期性抓取标记价格、写入缓存并通过WebSocket推送
type PriceMonitor struct {
	feed       PriceFeed
	cache      MarkPriceCache
	currencies []string
	interval   time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	feedDown  bool
	mu        sync.Mutex
}

// GlobalPriceMonitor 全局价格监控器实例
var GlobalPriceMonitor *PriceMonitor

// InitPriceMonitor 初始化全局价格监控器
func InitPriceMonitor(feed PriceFeed, cache MarkPriceCache, currencies []string, interval time.Duration) {
	GlobalPriceMonitor = &PriceMonitor{
		feed:       feed,
		cache:      cache,
		currencies: currencies,
		interval:   interval,
	}
}

// Start 启动价格轮询
func (m *PriceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		logrus.Warn("价格监控已在运行中")
		return
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.isRunning = true

	go m.run()
	logrus.Infof("价格监控已启动, 周期 %v, 币种 %v", m.interval, m.currencies)
}

// Stop 停止价格轮询
func (m *PriceMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.cancel()
	m.isRunning = false
	logrus.Info("价格监控已停止")
}

func (m *PriceMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 启动后立即拉取一次
	m.pollOnce()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

func (m *PriceMonitor) pollOnce() {
	ctx, cancel := context.WithTimeout(m.ctx, m.interval)
	defer cancel()

	prices := make(map[string]float64, len(m.currencies))
	failures := 0

	for _, currency := range m.currencies {
		price, err := m.feed.FetchMarkPrice(ctx, currency)
		if err != nil {
			logrus.Warnf("拉取价格失败 %s: %v", currency, err)
			failures++
			continue
		}

		prices[currency] = price
		if err := m.cache.SetMarkPrice(ctx, currency, price); err != nil {
			logrus.Errorf("写入价格缓存失败 %s: %v", currency, err)
		}
	}

	m.notifyFeedState(failures == len(m.currencies) && len(m.currencies) > 0)

	if len(prices) > 0 {
		if wsm := websocket.GlobalWebSocketManager; wsm != nil {
			wsm.BroadcastPrices(prices)
		}
	}
}

// notifyFeedState 行情源宕机/恢复时发送一次通知
func (m *PriceMonitor) notifyFeedState(down bool) {
	m.mu.Lock()
	changed := down != m.feedDown
	m.feedDown = down
	m.mu.Unlock()

	if !changed || telegram.GlobalTelegramClient == nil {
		return
	}

	if down {
		if err := telegram.GlobalTelegramClient.SendError("价格行情源不可用", fmt.Errorf("所有币种拉取失败")); err != nil {
			logrus.Errorf("发送Telegram通知失败: %v", err)
		}
	} else {
		if err := telegram.GlobalTelegramClient.SendMessage("价格行情源已恢复"); err != nil {
			logrus.Errorf("发送Telegram通知失败: %v", err)
		}
	}
}
