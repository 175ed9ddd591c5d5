package models

import (
	"encoding/json"
	"math"
	"time"
)

// 宽松修复策略：钱包损坏时整体回退默认值，持仓损坏时静默丢弃坏行。
// repaired 标志让调用方区分干净读取和被修复的读取，对外行为不变。

type walletJSON struct {
	USDBalance *float64 `json:"usdBalance"`
	BTCBalance *float64 `json:"btcBalance"`
	Bonus      *float64 `json:"bonus"`
}

type positionJSON struct {
	ID             *string    `json:"id"`
	Currency       *string    `json:"currency"`
	Side           *string    `json:"side"`
	OrderType      string     `json:"orderType"`
	Leverage       *float64   `json:"leverage"`
	Amount         *float64   `json:"amount"`
	ExecutionPrice *float64   `json:"executionPrice"`
	StopLoss       *float64   `json:"stopLoss"`
	TakeProfit     *float64   `json:"takeProfit"`
	PlacedAt       *time.Time `json:"placedAt"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NormalizeWallet 校验钱包三个字段均为有限数字，否则整体替换为默认钱包
func NormalizeWallet(raw json.RawMessage) (Wallet, bool) {
	if len(raw) == 0 {
		return DefaultWallet(), true
	}

	var w walletJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return DefaultWallet(), true
	}

	if w.USDBalance == nil || !isFinite(*w.USDBalance) ||
		w.BTCBalance == nil || !isFinite(*w.BTCBalance) ||
		w.Bonus == nil || !isFinite(*w.Bonus) {
		return DefaultWallet(), true
	}

	return Wallet{
		USDBalance: *w.USDBalance,
		BTCBalance: *w.BTCBalance,
		Bonus:      *w.Bonus,
	}, false
}

// NormalizePositions 过滤掉形状不合法的持仓行并补齐缺失的 placedAt。
// 坏行静默丢弃，不向调用方报错。幂等：二次过滤结果不变。
func NormalizePositions(raw json.RawMessage) ([]Position, bool) {
	if len(raw) == 0 {
		return []Position{}, true
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return []Position{}, true
	}

	positions := make([]Position, 0, len(rows))
	repaired := false

	for _, row := range rows {
		var p positionJSON
		if err := json.Unmarshal(row, &p); err != nil {
			repaired = true
			continue
		}

		if p.ID == nil || p.Currency == nil || p.Side == nil ||
			(*p.Side != SideBuy && *p.Side != SideSell) ||
			p.Leverage == nil || !isFinite(*p.Leverage) || *p.Leverage <= 0 ||
			p.Amount == nil || !isFinite(*p.Amount) || *p.Amount <= 0 ||
			p.ExecutionPrice == nil || !isFinite(*p.ExecutionPrice) || *p.ExecutionPrice <= 0 {
			repaired = true
			continue
		}

		placedAt := time.Now().UTC()
		if p.PlacedAt != nil && !p.PlacedAt.IsZero() {
			placedAt = *p.PlacedAt
		}

		positions = append(positions, Position{
			ID:             *p.ID,
			Currency:       *p.Currency,
			Side:           *p.Side,
			OrderType:      p.OrderType,
			Leverage:       *p.Leverage,
			Amount:         *p.Amount,
			ExecutionPrice: *p.ExecutionPrice,
			StopLoss:       p.StopLoss,
			TakeProfit:     p.TakeProfit,
			PlacedAt:       placedAt,
		})
	}

	return positions, repaired
}

type ledgerJSON struct {
	Wallet    json.RawMessage `json:"wallet"`
	Positions json.RawMessage `json:"positions"`
}

// ParseLedger 解析存储中的账本行并做宽松修复。
// 空值或整体损坏的 JSON 回退为默认账本。
func ParseLedger(raw []byte) (*LedgerRecord, bool) {
	if len(raw) == 0 {
		return DefaultLedger(), true
	}

	var l ledgerJSON
	if err := json.Unmarshal(raw, &l); err != nil {
		return DefaultLedger(), true
	}

	wallet, walletRepaired := NormalizeWallet(l.Wallet)
	positions, positionsRepaired := NormalizePositions(l.Positions)

	return &LedgerRecord{
		Wallet:    wallet,
		Positions: positions,
	}, walletRepaired || positionsRepaired
}
