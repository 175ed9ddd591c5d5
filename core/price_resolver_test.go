package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"paper_perps/pkg/redis"
)

// fakeFeed 可控的行情源
type fakeFeed struct {
	price float64
	err   error
	calls int
}

func (f *fakeFeed) FetchMarkPrice(ctx context.Context, currency string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

// fakeCache 内存中的标记价格缓存
type fakeCache struct {
	prices map[string]*redis.CachedMarkPrice
}

func newFakeCache() *fakeCache {
	return &fakeCache{prices: make(map[string]*redis.CachedMarkPrice)}
}

func (c *fakeCache) GetMarkPrice(ctx context.Context, currency string) (*redis.CachedMarkPrice, error) {
	return c.prices[currency], nil
}

func (c *fakeCache) SetMarkPrice(ctx context.Context, currency string, price float64) error {
	c.prices[currency] = &redis.CachedMarkPrice{
		Currency:  currency,
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
	}
	return nil
}

func TestResolveTrustedSource(t *testing.T) {
	feed := &fakeFeed{price: 50000}
	cache := newFakeCache()
	r := NewPriceResolver(feed, cache, 0.20)

	resolved, opErr := r.Resolve(context.Background(), "bitcoin", 49000, 0)
	if opErr != nil {
		t.Fatalf("行情源可用时不应失败: %v", opErr)
	}
	if resolved.Source != PriceSourceTrusted {
		t.Fatalf("价格来源应为 %s, 实际 %s", PriceSourceTrusted, resolved.Source)
	}
	if resolved.Price != 50000 {
		t.Fatalf("应使用行情源价格而非客户端价格, 实际 %v", resolved.Price)
	}

	// 成功拉取应刷新缓存
	if cached := cache.prices["bitcoin"]; cached == nil || cached.Price != 50000 {
		t.Fatal("行情源价格应写入缓存")
	}
}

func TestResolveFallbackWithinDeviation(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	cache := newFakeCache()
	cache.SetMarkPrice(context.Background(), "bitcoin", 50000)
	r := NewPriceResolver(feed, cache, 0.20)

	resolved, opErr := r.Resolve(context.Background(), "bitcoin", 52000, 0)
	if opErr != nil {
		t.Fatalf("偏差范围内的客户端价格应被接受: %v", opErr)
	}
	if resolved.Source != PriceSourceFallback {
		t.Fatalf("价格来源应为 %s, 实际 %s", PriceSourceFallback, resolved.Source)
	}
	if resolved.Price != 52000 {
		t.Fatalf("应使用客户端价格, 实际 %v", resolved.Price)
	}
}

func TestResolveFallbackExceedsDeviation(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	cache := newFakeCache()
	cache.SetMarkPrice(context.Background(), "bitcoin", 50000)
	r := NewPriceResolver(feed, cache, 0.20)

	// 偏差 40% > 20%
	_, opErr := r.Resolve(context.Background(), "bitcoin", 70000, 0)
	if opErr == nil {
		t.Fatal("偏差过大的客户端价格应被拒绝")
	}
	if opErr.Code != CodePriceUnavailable {
		t.Fatalf("错误码应为 %s, 实际 %s", CodePriceUnavailable, opErr.Code)
	}
}

func TestResolveStaleCacheFallsBackToReference(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	cache := newFakeCache()
	// 过期的缓存价格不作参考
	cache.prices["bitcoin"] = &redis.CachedMarkPrice{
		Currency:  "bitcoin",
		Price:     10000,
		Timestamp: time.Now().Add(-10 * time.Minute).UnixMilli(),
	}
	r := NewPriceResolver(feed, cache, 0.20)

	// 调用方参考价 50000, 客户端价格在范围内
	resolved, opErr := r.Resolve(context.Background(), "bitcoin", 51000, 50000)
	if opErr != nil {
		t.Fatalf("过期缓存应退回调用方参考价: %v", opErr)
	}
	if resolved.Price != 51000 {
		t.Fatalf("应使用客户端价格, 实际 %v", resolved.Price)
	}
}

func TestResolveNoReferenceAvailable(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	r := NewPriceResolver(feed, newFakeCache(), 0.20)

	// 无缓存、无参考价时无法校验客户端价格
	_, opErr := r.Resolve(context.Background(), "bitcoin", 50000, 0)
	if opErr == nil {
		t.Fatal("无参考价时应拒绝客户端价格")
	}
	if opErr.Code != CodePriceUnavailable {
		t.Fatalf("错误码应为 %s, 实际 %s", CodePriceUnavailable, opErr.Code)
	}
}

func TestResolveNoClientPrice(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	r := NewPriceResolver(feed, newFakeCache(), 0.20)

	_, opErr := r.Resolve(context.Background(), "bitcoin", 0, 50000)
	if opErr == nil {
		t.Fatal("行情源不可用且无客户端价格时应失败")
	}
}
