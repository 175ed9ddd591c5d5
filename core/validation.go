package core

import (
	"math"
	"strings"

	"paper_perps/models"
)

const (
	// MinOrderAmount 最小下单数量
	MinOrderAmount = 0.001
)

// AllowedLeverages 允许的杠杆档位
var AllowedLeverages = map[int]bool{
	1:  true,
	2:  true,
	3:  true,
	5:  true,
	10: true,
	20: true,
	50: true,
}

// OpenRequest 开仓请求参数
type OpenRequest struct {
	Currency    string
	Side        string
	OrderType   string
	Leverage    int
	Amount      float64
	ClientPrice float64
	StopLoss    *float64
	TakeProfit  *float64
}

// NormalizeCurrency 币种统一为小写slug存储和比较
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// ValidateOrderRequest 校验开仓参数并归一化币种，返回第一个失败项
func ValidateOrderRequest(req *OpenRequest) *OpError {
	req.Currency = NormalizeCurrency(req.Currency)
	if req.Currency == "" {
		return Invalidf("Currency is required.")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return Invalidf("Side must be %q or %q.", models.SideBuy, models.SideSell)
	}
	if !AllowedLeverages[req.Leverage] {
		return Invalidf("Leverage %d is not supported.", req.Leverage)
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < MinOrderAmount {
		return Invalidf("Amount must be at least %g.", MinOrderAmount)
	}
	if req.StopLoss != nil && (math.IsNaN(*req.StopLoss) || math.IsInf(*req.StopLoss, 0) || *req.StopLoss <= 0) {
		return Invalidf("Stop loss must be a positive price.")
	}
	if req.TakeProfit != nil && (math.IsNaN(*req.TakeProfit) || math.IsInf(*req.TakeProfit, 0) || *req.TakeProfit <= 0) {
		return Invalidf("Take profit must be a positive price.")
	}
	return nil
}

// ValidateProtectivePrices 校验止损止盈相对成交价的方向
//
// 多头: 止损必须低于成交价，止盈必须高于成交价；空头相反
func ValidateProtectivePrices(side string, execPrice float64, stopLoss, takeProfit *float64) *OpError {
	if side == models.SideBuy {
		if stopLoss != nil && *stopLoss >= execPrice {
			return Invalidf("Stop loss must be below the execution price for a long position.")
		}
		if takeProfit != nil && *takeProfit <= execPrice {
			return Invalidf("Take profit must be above the execution price for a long position.")
		}
	} else {
		if stopLoss != nil && *stopLoss <= execPrice {
			return Invalidf("Stop loss must be above the execution price for a short position.")
		}
		if takeProfit != nil && *takeProfit >= execPrice {
			return Invalidf("Take profit must be below the execution price for a short position.")
		}
	}
	return nil
}
