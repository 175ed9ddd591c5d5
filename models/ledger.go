package models

import "time"

// 仓位方向
const (
	SideBuy  = "buy"  // 做多
	SideSell = "sell" // 做空
)

// Wallet 模拟钱包。usdBalance 参与保证金计算，
// btcBalance 和 bonus 为展示用途字段，结算操作原样保留。
type Wallet struct {
	USDBalance float64 `json:"usdBalance"`
	BTCBalance float64 `json:"btcBalance"`
	Bonus      float64 `json:"bonus"`
}

// DefaultWallet 新用户钱包，也是损坏钱包的整体替换值
func DefaultWallet() Wallet {
	return Wallet{
		USDBalance: 20000,
		BTCBalance: 0.35,
		Bonus:      185,
	}
}

// Position 一笔未平仓的杠杆仓位。开仓后不可变更，只能整体平掉。
type Position struct {
	ID             string    `json:"id"`
	Currency       string    `json:"currency"`
	Side           string    `json:"side"`
	OrderType      string    `json:"orderType,omitempty"`
	Leverage       float64   `json:"leverage"`
	Amount         float64   `json:"amount"`
	ExecutionPrice float64   `json:"executionPrice"`
	StopLoss       *float64  `json:"stopLoss"`
	TakeProfit     *float64  `json:"takeProfit"`
	PlacedAt       time.Time `json:"placedAt"`
}

// DirectionSign 多头 +1，空头 -1
func (p *Position) DirectionSign() float64 {
	if p.Side == SideSell {
		return -1
	}
	return 1
}

// LedgerRecord 账本行：一个用户的钱包与持仓，整体读整体写
type LedgerRecord struct {
	Wallet    Wallet     `json:"wallet"`
	Positions []Position `json:"positions"`
}

// DefaultLedger 注册时写入的初始账本
func DefaultLedger() *LedgerRecord {
	return &LedgerRecord{
		Wallet:    DefaultWallet(),
		Positions: []Position{},
	}
}
