package core

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"paper_perps/pkg/redis"
)

const (
	// PriceSourceTrusted 价格来自可信行情源
	PriceSourceTrusted = "trusted"
	// PriceSourceFallback 价格来自客户端回退
	PriceSourceFallback = "fallback"

	// 缓存标记价格的最大可用年龄
	markPriceMaxAge = 2 * time.Minute
)

// PriceFeed 行情源接口
type PriceFeed interface {
	FetchMarkPrice(ctx context.Context, currency string) (float64, error)
}

// MarkPriceCache 标记价格缓存接口
type MarkPriceCache interface {
	GetMarkPrice(ctx context.Context, currency string) (*redis.CachedMarkPrice, error)
	SetMarkPrice(ctx context.Context, currency string, price float64) error
}

// ResolvedPrice 最终确定的成交价格及其来源
type ResolvedPrice struct {
	Price  float64
	Source string
}

// PriceResolver 按可信源优先、客户端价格受约束回退的顺序确定成交价格
type PriceResolver struct {
	feed         PriceFeed
	cache        MarkPriceCache
	maxDeviation float64
}

// NewPriceResolver 创建价格解析器，maxDeviation为回退价格相对参考价的最大偏离比例
func NewPriceResolver(feed PriceFeed, cache MarkPriceCache, maxDeviation float64) *PriceResolver {
	return &PriceResolver{
		feed:         feed,
		cache:        cache,
		maxDeviation: maxDeviation,
	}
}

// Resolve 确定币种的成交价格
//
// 优先使用行情源的实时价格；行情源不可用时，客户端价格在
// 参考价偏离范围内才被接受。参考价取最近缓存的标记价格，
// 缓存过期则退回调用方提供的referencePrice（0表示无参考价）。
func (r *PriceResolver) Resolve(ctx context.Context, currency string, clientPrice, referencePrice float64) (*ResolvedPrice, *OpError) {
	if r.feed != nil {
		price, err := r.feed.FetchMarkPrice(ctx, currency)
		if err == nil && price > 0 {
			if r.cache != nil {
				if cacheErr := r.cache.SetMarkPrice(ctx, currency, price); cacheErr != nil {
					logrus.Warnf("缓存标记价格失败 %s: %v", currency, cacheErr)
				}
			}
			return &ResolvedPrice{Price: price, Source: PriceSourceTrusted}, nil
		}
		if err != nil {
			logrus.Warnf("获取行情价格失败 %s: %v", currency, err)
		}
	}

	// 行情源不可用，尝试客户端价格回退
	if clientPrice <= 0 || math.IsNaN(clientPrice) || math.IsInf(clientPrice, 0) {
		return nil, PriceUnavailable(currency)
	}

	reference := r.lookupReference(ctx, currency)
	if reference <= 0 {
		reference = referencePrice
	}
	if reference <= 0 {
		// 没有任何参考价可供校验客户端价格
		return nil, PriceUnavailable(currency)
	}

	deviation := math.Abs(clientPrice-reference) / reference
	if deviation > r.maxDeviation {
		logrus.Warnf("客户端价格偏离过大 %s: client=%.4f reference=%.4f deviation=%.2f%%",
			currency, clientPrice, reference, deviation*100)
		return nil, PriceUnavailable(currency)
	}

	return &ResolvedPrice{Price: clientPrice, Source: PriceSourceFallback}, nil
}

func (r *PriceResolver) lookupReference(ctx context.Context, currency string) float64 {
	if r.cache == nil {
		return 0
	}
	cached, err := r.cache.GetMarkPrice(ctx, currency)
	if err != nil || cached == nil {
		return 0
	}
	if cached.Age() > markPriceMaxAge {
		return 0
	}
	return cached.Price
}
