package priceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Client 公共行情API客户端。只负责取一个当前标记价格，
// 失败不在内部重试，由调用方决定降级策略。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建行情客户端，timeout 约束单次请求
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type priceHistoryResponse struct {
	Prices [][]float64 `json:"prices"`
}

// FetchMarkPrice 获取一个币种的当前标记价格。
// 非2xx响应、空序列或非正价格一律视为行情不可用。
func (c *Client) FetchMarkPrice(ctx context.Context, currency string) (float64, error) {
	// 时间戳参数绕过CDN缓存
	url := fmt.Sprintf("%s/price/v2/h/%s/?t=%d", c.baseURL, currency, time.Now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("行情请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("行情接口返回状态码 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("读取行情响应失败: %v", err)
	}

	var payload priceHistoryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("解析行情响应失败: %v", err)
	}

	if len(payload.Prices) == 0 {
		return 0, fmt.Errorf("行情序列为空: %s", currency)
	}

	latest := payload.Prices[len(payload.Prices)-1]
	if len(latest) < 2 {
		return 0, fmt.Errorf("行情数据点格式错误: %s", currency)
	}

	price := latest[1]
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("无效的标记价格: %s %f", currency, price)
	}

	return price, nil
}
