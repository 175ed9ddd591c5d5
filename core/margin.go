package core

import (
	"paper_perps/models"
)

// PositionMargin 单个持仓占用的保证金
func PositionMargin(p *models.Position) float64 {
	if p.Leverage <= 0 {
		return 0
	}
	return p.Amount * p.ExecutionPrice / p.Leverage
}

// MarginInUse 所有持仓占用的保证金总和
func MarginInUse(positions []models.Position) float64 {
	total := 0.0
	for i := range positions {
		total += PositionMargin(&positions[i])
	}
	return total
}

// AvailableBalance 可用余额 = USD余额 - 占用保证金
func AvailableBalance(wallet models.Wallet, positions []models.Position) float64 {
	return wallet.USDBalance - MarginInUse(positions)
}

// PositionPnl 按标记价格计算单个持仓的浮动盈亏
//
// 多头: (mark - exec) * amount * leverage
// 空头: (exec - mark) * amount * leverage
func PositionPnl(p *models.Position, markPrice float64) float64 {
	return (markPrice - p.ExecutionPrice) * p.Amount * p.DirectionSign() * p.Leverage
}

// AggregatePnl 按币种标记价格汇总所有持仓的浮动盈亏，
// 缺少标记价格的币种跳过不计
func AggregatePnl(positions []models.Position, markPrices map[string]float64) float64 {
	total := 0.0
	for i := range positions {
		mark, ok := markPrices[positions[i].Currency]
		if !ok || mark <= 0 {
			continue
		}
		total += PositionPnl(&positions[i], mark)
	}
	return total
}
