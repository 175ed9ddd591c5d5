package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paper_perps/models"
	"paper_perps/pkg/database"
)

// LedgerStore 账本存储接口
type LedgerStore interface {
	EnsureLedger(ctx context.Context, userID int64) error
	GetLedger(ctx context.Context, userID int64) (*models.LedgerRecord, bool, error)
	UpdateLedger(ctx context.Context, userID int64, mutate func(*models.LedgerRecord) error) (*models.LedgerRecord, error)
	TransferLedgers(ctx context.Context, senderID, recipientID int64, mutate func(sender, recipient *models.LedgerRecord) error) (*models.LedgerRecord, error)
	ScanLedgers(ctx context.Context) (map[int64]*models.LedgerRecord, error)
}

// UserDirectory 用户目录接口
type UserDirectory interface {
	GetUserByID(id int64) (*models.User, error)
	GetUsersByIDs(ids []int64) (map[int64]*models.User, error)
}

// Settlement 结算引擎，所有钱包与持仓变更的唯一入口
type Settlement struct {
	store    LedgerStore
	users    UserDirectory
	resolver *PriceResolver
}

// NewSettlement 创建结算引擎
func NewSettlement(store LedgerStore, users UserDirectory, resolver *PriceResolver) *Settlement {
	return &Settlement{
		store:    store,
		users:    users,
		resolver: resolver,
	}
}

// ActionResult 结算操作的统一结果
type ActionResult struct {
	Message     string
	Wallet      models.Wallet
	Positions   []models.Position
	Position    *models.Position
	ClosedCount int
	ClosedPnl   float64
}

// errNoop 表示变更闭包决定不写入，调用方视为成功
var errNoop = errors.New("no-op")

// newPositionID 生成持仓ID: {currency}-{毫秒时间戳}-{短uuid}
func newPositionID(currency string) string {
	return fmt.Sprintf("%s-%d-%s", currency, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// lastExecutionPrice 查找同币种最近一次开仓的成交价作为回退参考价
func lastExecutionPrice(positions []models.Position, currency string) float64 {
	best := 0.0
	var bestTime time.Time
	for i := range positions {
		p := &positions[i]
		if p.Currency != currency {
			continue
		}
		if p.PlacedAt.After(bestTime) {
			bestTime = p.PlacedAt
			best = p.ExecutionPrice
		}
	}
	return best
}

// Open 开仓
func (s *Settlement) Open(ctx context.Context, userID int64, req *OpenRequest) (*ActionResult, error) {
	if opErr := ValidateOrderRequest(req); opErr != nil {
		return nil, opErr
	}

	var opened models.Position
	var resolved *ResolvedPrice

	record, err := s.store.UpdateLedger(ctx, userID, func(rec *models.LedgerRecord) error {
		reference := lastExecutionPrice(rec.Positions, req.Currency)
		price, opErr := s.resolver.Resolve(ctx, req.Currency, req.ClientPrice, reference)
		if opErr != nil {
			return opErr
		}
		resolved = price

		if opErr := ValidateProtectivePrices(req.Side, price.Price, req.StopLoss, req.TakeProfit); opErr != nil {
			return opErr
		}

		required := req.Amount * price.Price / float64(req.Leverage)
		available := AvailableBalance(rec.Wallet, rec.Positions)
		if required > available {
			return InsufficientBalance(required, available)
		}

		opened = models.Position{
			ID:             newPositionID(req.Currency),
			Currency:       req.Currency,
			Side:           req.Side,
			OrderType:      req.OrderType,
			Leverage:       float64(req.Leverage),
			Amount:         req.Amount,
			ExecutionPrice: price.Price,
			StopLoss:       req.StopLoss,
			TakeProfit:     req.TakeProfit,
			PlacedAt:       time.Now().UTC(),
		}
		rec.Positions = append(rec.Positions, opened)
		return nil
	})
	if err != nil {
		if opErr, ok := AsOpError(err); ok {
			return nil, opErr
		}
		return nil, StorageError(err)
	}

	logrus.WithFields(logrus.Fields{
		"userId":   userID,
		"position": opened.ID,
		"source":   resolved.Source,
	}).Infof("开仓成功 %s %s %.4f @ %.4f x%d", req.Currency, req.Side, req.Amount, opened.ExecutionPrice, req.Leverage)

	return &ActionResult{
		Message:   fmt.Sprintf("Opened %s %s position: %g @ %.2f (%dx).", req.Currency, req.Side, req.Amount, opened.ExecutionPrice, req.Leverage),
		Wallet:    record.Wallet,
		Positions: record.Positions,
		Position:  &opened,
	}, nil
}

// Close 平掉指定持仓，已实现盈亏计入USD余额
func (s *Settlement) Close(ctx context.Context, userID int64, positionID string, clientPrice float64) (*ActionResult, error) {
	if positionID == "" {
		return nil, Invalidf("Position id is required.")
	}

	var closedPnl float64
	var closed models.Position

	record, err := s.store.UpdateLedger(ctx, userID, func(rec *models.LedgerRecord) error {
		idx := -1
		for i := range rec.Positions {
			if rec.Positions[i].ID == positionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return NotFound(positionID)
		}

		pos := rec.Positions[idx]
		price, opErr := s.resolver.Resolve(ctx, pos.Currency, clientPrice, pos.ExecutionPrice)
		if opErr != nil {
			return opErr
		}

		closed = pos
		closedPnl = PositionPnl(&pos, price.Price)
		rec.Wallet.USDBalance += closedPnl
		rec.Positions = append(rec.Positions[:idx], rec.Positions[idx+1:]...)
		return nil
	})
	if err != nil {
		if opErr, ok := AsOpError(err); ok {
			return nil, opErr
		}
		return nil, StorageError(err)
	}

	logrus.WithFields(logrus.Fields{
		"userId":   userID,
		"position": positionID,
	}).Infof("平仓成功 %s, 盈亏 %+.2f", closed.Currency, closedPnl)

	return &ActionResult{
		Message:     fmt.Sprintf("Closed position %s with PnL %+.2f USD.", positionID, closedPnl),
		Wallet:      record.Wallet,
		Positions:   record.Positions,
		Position:    &closed,
		ClosedCount: 1,
		ClosedPnl:   closedPnl,
	}, nil
}

// CloseAll 平掉所有持仓（currency非空时只平该币种）。
// 没有匹配持仓时不写入，直接返回成功。
func (s *Settlement) CloseAll(ctx context.Context, userID int64, currency string, clientPrice float64) (*ActionResult, error) {
	currency = NormalizeCurrency(currency)

	var closedCount int
	var totalPnl float64

	record, err := s.store.UpdateLedger(ctx, userID, func(rec *models.LedgerRecord) error {
		closedCount = 0
		totalPnl = 0

		var matching []int
		for i := range rec.Positions {
			if currency == "" || rec.Positions[i].Currency == currency {
				matching = append(matching, i)
			}
		}
		if len(matching) == 0 {
			return errNoop
		}

		// 每个币种只解析一次价格
		prices := make(map[string]float64)
		for _, i := range matching {
			pos := &rec.Positions[i]
			if _, ok := prices[pos.Currency]; ok {
				continue
			}
			// 客户端价格只对指定的过滤币种有意义
			cp := 0.0
			if currency != "" && pos.Currency == currency {
				cp = clientPrice
			}
			price, opErr := s.resolver.Resolve(ctx, pos.Currency, cp, pos.ExecutionPrice)
			if opErr != nil {
				return opErr
			}
			prices[pos.Currency] = price.Price
		}

		remaining := rec.Positions[:0]
		for i := range rec.Positions {
			pos := rec.Positions[i]
			if currency == "" || pos.Currency == currency {
				totalPnl += PositionPnl(&pos, prices[pos.Currency])
				closedCount++
				continue
			}
			remaining = append(remaining, pos)
		}
		rec.Positions = remaining
		rec.Wallet.USDBalance += totalPnl
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoop) {
			// 没有可平的持仓
			state, _, stateErr := s.store.GetLedger(ctx, userID)
			if stateErr != nil {
				return nil, StorageError(stateErr)
			}
			return &ActionResult{
				Message:   "No open positions to close.",
				Wallet:    state.Wallet,
				Positions: state.Positions,
			}, nil
		}
		if opErr, ok := AsOpError(err); ok {
			return nil, opErr
		}
		return nil, StorageError(err)
	}

	logrus.WithField("userId", userID).Infof("批量平仓 %d 个持仓, 总盈亏 %+.2f", closedCount, totalPnl)

	return &ActionResult{
		Message:     fmt.Sprintf("Closed %d position(s) with total PnL %+.2f USD.", closedCount, totalPnl),
		Wallet:      record.Wallet,
		Positions:   record.Positions,
		ClosedCount: closedCount,
		ClosedPnl:   totalPnl,
	}, nil
}

// WalletAdjust 手工调整USD余额，负向调整不得超过可用余额
func (s *Settlement) WalletAdjust(ctx context.Context, userID int64, amount float64, reason string) (*ActionResult, error) {
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, Invalidf("Adjustment amount must be a finite non-zero number.")
	}

	record, err := s.store.UpdateLedger(ctx, userID, func(rec *models.LedgerRecord) error {
		if amount < 0 {
			available := AvailableBalance(rec.Wallet, rec.Positions)
			if -amount > available {
				return InsufficientBalance(-amount, available)
			}
		}
		rec.Wallet.USDBalance += amount
		return nil
	})
	if err != nil {
		if opErr, ok := AsOpError(err); ok {
			return nil, opErr
		}
		return nil, StorageError(err)
	}

	logrus.WithFields(logrus.Fields{
		"userId": userID,
		"reason": reason,
	}).Infof("余额调整 %+.2f", amount)

	return &ActionResult{
		Message:   fmt.Sprintf("Wallet adjusted by %+.2f USD.", amount),
		Wallet:    record.Wallet,
		Positions: record.Positions,
	}, nil
}

// Transfer 向另一用户转账USD，金额不得超过发送方可用余额
func (s *Settlement) Transfer(ctx context.Context, senderID, recipientID int64, amount float64, note string) (*ActionResult, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, Invalidf("Transfer amount must be a positive number.")
	}
	if recipientID == senderID {
		return nil, Invalidf("Cannot transfer to yourself.")
	}

	recipient, err := s.users.GetUserByID(recipientID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, UserNotFound(recipientID)
		}
		return nil, StorageError(err)
	}

	record, err := s.store.TransferLedgers(ctx, senderID, recipientID, func(sender, rcpt *models.LedgerRecord) error {
		available := AvailableBalance(sender.Wallet, sender.Positions)
		if amount > available {
			return InsufficientBalance(amount, available)
		}
		sender.Wallet.USDBalance -= amount
		rcpt.Wallet.USDBalance += amount
		return nil
	})
	if err != nil {
		if opErr, ok := AsOpError(err); ok {
			return nil, opErr
		}
		return nil, StorageError(err)
	}

	logrus.WithFields(logrus.Fields{
		"senderId":    senderID,
		"recipientId": recipientID,
		"note":        note,
	}).Infof("转账 %.2f USD", amount)

	return &ActionResult{
		Message:   fmt.Sprintf("Transferred %.2f USD to %s.", amount, recipient.Name),
		Wallet:    record.Wallet,
		Positions: record.Positions,
	}, nil
}

// UserState 读取用户账本（不存在或损坏时按默认值修复）
func (s *Settlement) UserState(ctx context.Context, userID int64) (*models.LedgerRecord, bool, error) {
	record, repaired, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return nil, false, StorageError(err)
	}
	if repaired {
		logrus.WithField("userId", userID).Warn("账本数据异常，已按默认值修复")
	}
	return record, repaired, nil
}
