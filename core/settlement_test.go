package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"paper_perps/models"
	"paper_perps/pkg/database"
)

// memoryStore 内存账本存储，序列化存取以模拟真实存储的整行读写
type memoryStore struct {
	mu      sync.Mutex
	ledgers map[int64][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{ledgers: make(map[int64][]byte)}
}

func (m *memoryStore) load(userID int64) (*models.LedgerRecord, bool) {
	raw, ok := m.ledgers[userID]
	if !ok {
		return models.DefaultLedger(), true
	}
	record, repaired := models.ParseLedger(raw)
	return record, repaired
}

func (m *memoryStore) save(userID int64, record *models.LedgerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	m.ledgers[userID] = data
	return nil
}

func (m *memoryStore) EnsureLedger(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledgers[userID]; !ok {
		return m.save(userID, models.DefaultLedger())
	}
	return nil
}

func (m *memoryStore) GetLedger(ctx context.Context, userID int64) (*models.LedgerRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, repaired := m.load(userID)
	return record, repaired, nil
}

func (m *memoryStore) UpdateLedger(ctx context.Context, userID int64, mutate func(*models.LedgerRecord) error) (*models.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, _ := m.load(userID)
	if err := mutate(record); err != nil {
		return nil, err
	}
	if err := m.save(userID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (m *memoryStore) TransferLedgers(ctx context.Context, senderID, recipientID int64, mutate func(sender, recipient *models.LedgerRecord) error) (*models.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sender, _ := m.load(senderID)
	recipient, _ := m.load(recipientID)
	if err := mutate(sender, recipient); err != nil {
		return nil, err
	}
	if err := m.save(senderID, sender); err != nil {
		return nil, err
	}
	if err := m.save(recipientID, recipient); err != nil {
		return nil, err
	}
	return sender, nil
}

func (m *memoryStore) ScanLedgers(ctx context.Context) (map[int64]*models.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[int64]*models.LedgerRecord, len(m.ledgers))
	for userID := range m.ledgers {
		record, _ := m.load(userID)
		result[userID] = record
	}
	return result, nil
}

// fakeDirectory 内存用户目录
type fakeDirectory struct {
	users map[int64]*models.User
}

func (d *fakeDirectory) GetUserByID(id int64) (*models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return user, nil
}

func (d *fakeDirectory) GetUsersByIDs(ids []int64) (map[int64]*models.User, error) {
	result := make(map[int64]*models.User)
	for _, id := range ids {
		if user, ok := d.users[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func newTestSettlement(feedPrice float64) (*Settlement, *memoryStore, *fakeFeed) {
	store := newMemoryStore()
	feed := &fakeFeed{price: feedPrice}
	users := &fakeDirectory{users: map[int64]*models.User{
		1: {ID: 1, Name: "Alice"},
		2: {ID: 2, Name: "Bob"},
	}}
	resolver := NewPriceResolver(feed, newFakeCache(), 0.20)
	return NewSettlement(store, users, resolver), store, feed
}

func TestOpenPosition(t *testing.T) {
	s, _, _ := newTestSettlement(50000)

	result, err := s.Open(context.Background(), 1, &OpenRequest{
		Currency: "bitcoin",
		Side:     models.SideBuy,
		Leverage: 10,
		Amount:   0.5,
	})
	if err != nil {
		t.Fatalf("开仓失败: %v", err)
	}
	if len(result.Positions) != 1 {
		t.Fatalf("应有1个持仓, 实际 %d", len(result.Positions))
	}

	pos := result.Positions[0]
	if pos.ExecutionPrice != 50000 {
		t.Fatalf("成交价应为行情价 50000, 实际 %v", pos.ExecutionPrice)
	}
	if pos.Leverage != 10 || pos.Amount != 0.5 {
		t.Fatalf("持仓参数不符: %+v", pos)
	}

	// USD余额不因开仓变动, 只占用保证金
	if result.Wallet.USDBalance != 20000 {
		t.Fatalf("开仓不应改变USD余额, 实际 %v", result.Wallet.USDBalance)
	}
	available := AvailableBalance(result.Wallet, result.Positions)
	if !almostEqual(available, 17500) {
		t.Fatalf("可用余额应为 17500, 实际 %v", available)
	}
}

func TestOpenInsufficientMargin(t *testing.T) {
	s, _, _ := newTestSettlement(50000)

	// 需要保证金 1 * 50000 / 1 = 50000 > 20000
	_, err := s.Open(context.Background(), 1, &OpenRequest{
		Currency: "bitcoin",
		Side:     models.SideBuy,
		Leverage: 1,
		Amount:   1,
	})
	opErr, ok := AsOpError(err)
	if !ok || opErr.Code != CodeInsufficientBalance {
		t.Fatalf("应返回保证金不足错误, 实际: %v", err)
	}

	// 失败的开仓不应留下持仓
	record, _, _ := s.UserState(context.Background(), 1)
	if len(record.Positions) != 0 {
		t.Fatalf("失败的开仓不应写入持仓, 实际 %d", len(record.Positions))
	}
}

func TestOpenRejectsBadProtectivePrices(t *testing.T) {
	s, _, _ := newTestSettlement(50000)

	// 多头止损高于成交价
	_, err := s.Open(context.Background(), 1, &OpenRequest{
		Currency: "bitcoin",
		Side:     models.SideBuy,
		Leverage: 10,
		Amount:   0.5,
		StopLoss: floatPtr(51000),
	})
	opErr, ok := AsOpError(err)
	if !ok || opErr.Code != CodeInvalidParams {
		t.Fatalf("应返回参数错误, 实际: %v", err)
	}
}

func TestClosePosition(t *testing.T) {
	s, _, feed := newTestSettlement(50000)
	ctx := context.Background()

	result, err := s.Open(ctx, 1, &OpenRequest{
		Currency: "bitcoin",
		Side:     models.SideBuy,
		Leverage: 10,
		Amount:   0.5,
	})
	if err != nil {
		t.Fatalf("开仓失败: %v", err)
	}

	// 价格上涨后平仓: 盈亏 1000 * 0.5 * 10 = 5000
	feed.price = 51000
	closed, err := s.Close(ctx, 1, result.Position.ID, 0)
	if err != nil {
		t.Fatalf("平仓失败: %v", err)
	}
	if !almostEqual(closed.ClosedPnl, 5000) {
		t.Fatalf("已实现盈亏应为 5000, 实际 %v", closed.ClosedPnl)
	}
	if !almostEqual(closed.Wallet.USDBalance, 25000) {
		t.Fatalf("平仓后余额应为 25000, 实际 %v", closed.Wallet.USDBalance)
	}
	if len(closed.Positions) != 0 {
		t.Fatalf("平仓后不应有持仓, 实际 %d", len(closed.Positions))
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	s, _, _ := newTestSettlement(50000)

	_, err := s.Close(context.Background(), 1, "bitcoin-0-deadbeef", 0)
	opErr, ok := AsOpError(err)
	if !ok || opErr.Code != CodePositionNotFound {
		t.Fatalf("应返回持仓不存在错误, 实际: %v", err)
	}
}

func TestCloseAllWithCurrencyFilter(t *testing.T) {
	s, _, feed := newTestSettlement(50000)
	ctx := context.Background()

	if _, err := s.Open(ctx, 1, &OpenRequest{Currency: "bitcoin", Side: models.SideBuy, Leverage: 10, Amount: 0.1}); err != nil {
		t.Fatalf("开仓失败: %v", err)
	}
	if _, err := s.Open(ctx, 1, &OpenRequest{Currency: "bitcoin", Side: models.SideSell, Leverage: 5, Amount: 0.2}); err != nil {
		t.Fatalf("开仓失败: %v", err)
	}
	feed.price = 3000
	if _, err := s.Open(ctx, 1, &OpenRequest{Currency: "ethereum", Side: models.SideBuy, Leverage: 2, Amount: 1}); err != nil {
		t.Fatalf("开仓失败: %v", err)
	}

	feed.price = 50000
	result, err := s.CloseAll(ctx, 1, "bitcoin", 0)
	if err != nil {
		t.Fatalf("批量平仓失败: %v", err)
	}
	if result.ClosedCount != 2 {
		t.Fatalf("应平掉2个bitcoin持仓, 实际 %d", result.ClosedCount)
	}
	if len(result.Positions) != 1 || result.Positions[0].Currency != "ethereum" {
		t.Fatalf("ethereum持仓应保留, 实际: %+v", result.Positions)
	}
}

func TestOpenNormalizesCurrencySlug(t *testing.T) {
	s, _, _ := newTestSettlement(50000)
	ctx := context.Background()

	// 币种统一为小写slug, 大小写和空白不产生不同的持仓标的
	result, err := s.Open(ctx, 1, &OpenRequest{
		Currency: "  Bitcoin ",
		Side:     models.SideBuy,
		Leverage: 10,
		Amount:   0.5,
	})
	if err != nil {
		t.Fatalf("开仓失败: %v", err)
	}
	if result.Position.Currency != "bitcoin" {
		t.Fatalf("持仓币种应归一化为 bitcoin, 实际 %q", result.Position.Currency)
	}

	closed, err := s.CloseAll(ctx, 1, "BITCOIN", 0)
	if err != nil {
		t.Fatalf("批量平仓失败: %v", err)
	}
	if closed.ClosedCount != 1 {
		t.Fatalf("不同大小写的同一币种应被平掉, 实际平掉 %d", closed.ClosedCount)
	}
	if len(closed.Positions) != 0 {
		t.Fatalf("持仓应已清空, 实际 %d", len(closed.Positions))
	}
}

func TestCloseAllEmptyIsNoop(t *testing.T) {
	s, _, _ := newTestSettlement(50000)

	result, err := s.CloseAll(context.Background(), 1, "", 0)
	if err != nil {
		t.Fatalf("没有持仓时批量平仓应成功: %v", err)
	}
	if result.ClosedCount != 0 {
		t.Fatalf("应平掉0个持仓, 实际 %d", result.ClosedCount)
	}
	if result.Wallet.USDBalance != 20000 {
		t.Fatalf("钱包不应变动, 实际 %v", result.Wallet.USDBalance)
	}
}

func TestWalletAdjust(t *testing.T) {
	s, _, _ := newTestSettlement(50000)
	ctx := context.Background()

	result, err := s.WalletAdjust(ctx, 1, 500, "bonus")
	if err != nil {
		t.Fatalf("正向调整失败: %v", err)
	}
	if !almostEqual(result.Wallet.USDBalance, 20500) {
		t.Fatalf("调整后余额应为 20500, 实际 %v", result.Wallet.USDBalance)
	}

	// 负向调整不得超过可用余额
	_, err = s.WalletAdjust(ctx, 1, -30000, "withdraw")
	opErr, ok := AsOpError(err)
	if !ok || opErr.Code != CodeInsufficientBalance {
		t.Fatalf("超额负向调整应失败, 实际: %v", err)
	}

	_, err = s.WalletAdjust(ctx, 1, 0, "noop")
	opErr, ok = AsOpError(err)
	if !ok || opErr.Code != CodeInvalidParams {
		t.Fatalf("零调整应返回参数错误, 实际: %v", err)
	}
}

func TestTransferConservation(t *testing.T) {
	s, store, _ := newTestSettlement(50000)
	ctx := context.Background()

	result, err := s.Transfer(ctx, 1, 2, 5000, "gift")
	if err != nil {
		t.Fatalf("转账失败: %v", err)
	}
	if !almostEqual(result.Wallet.USDBalance, 15000) {
		t.Fatalf("发送方余额应为 15000, 实际 %v", result.Wallet.USDBalance)
	}

	recipient, _, _ := store.GetLedger(ctx, 2)
	if !almostEqual(recipient.Wallet.USDBalance, 25000) {
		t.Fatalf("接收方余额应为 25000, 实际 %v", recipient.Wallet.USDBalance)
	}

	// 转账前后总额守恒
	total := result.Wallet.USDBalance + recipient.Wallet.USDBalance
	if !almostEqual(total, 40000) {
		t.Fatalf("转账应守恒, 总额 %v", total)
	}
}

func TestTransferRejections(t *testing.T) {
	s, _, _ := newTestSettlement(50000)
	ctx := context.Background()

	// 收款人不存在
	_, err := s.Transfer(ctx, 1, 99, 100, "")
	opErr, ok := AsOpError(err)
	if !ok || opErr.Code != CodeUserNotFound {
		t.Fatalf("未知收款人应返回用户不存在, 实际: %v", err)
	}

	// 不能转给自己
	_, err = s.Transfer(ctx, 1, 1, 100, "")
	opErr, ok = AsOpError(err)
	if !ok || opErr.Code != CodeInvalidParams {
		t.Fatalf("转给自己应返回参数错误, 实际: %v", err)
	}

	// 超过可用余额
	_, err = s.Transfer(ctx, 1, 2, 30000, "")
	opErr, ok = AsOpError(err)
	if !ok || opErr.Code != CodeInsufficientBalance {
		t.Fatalf("超额转账应返回余额不足, 实际: %v", err)
	}
}

func TestConcurrentCloseOnlyOneSucceeds(t *testing.T) {
	s, _, _ := newTestSettlement(50000)
	ctx := context.Background()

	result, err := s.Open(ctx, 1, &OpenRequest{
		Currency: "bitcoin",
		Side:     models.SideBuy,
		Leverage: 10,
		Amount:   0.5,
	})
	if err != nil {
		t.Fatalf("开仓失败: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Close(ctx, 1, result.Position.ID, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, notFound := 0, 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if opErr, ok := AsOpError(err); ok && opErr.Code == CodePositionNotFound {
			notFound++
		}
	}

	// 同一持仓只能被平一次
	if succeeded != 1 {
		t.Fatalf("应恰好1次平仓成功, 实际 %d", succeeded)
	}
	if notFound != workers-1 {
		t.Fatalf("其余请求应返回持仓不存在, 实际 %d", notFound)
	}

	record, _, _ := s.UserState(ctx, 1)
	if len(record.Positions) != 0 {
		t.Fatalf("持仓应已清空, 实际 %d", len(record.Positions))
	}
}

func TestLeaderboardRanking(t *testing.T) {
	s, store, _ := newTestSettlement(50000)
	ctx := context.Background()

	// 构造三个账本: Bob领先, Alice与匿名用户并列
	for userID, balance := range map[int64]float64{1: 18000, 2: 25000, 3: 18000} {
		target := balance
		if _, err := store.UpdateLedger(ctx, userID, func(rec *models.LedgerRecord) error {
			rec.Wallet.USDBalance = target
			return nil
		}); err != nil {
			t.Fatalf("准备账本失败: %v", err)
		}
	}

	entries, err := s.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("获取排行榜失败: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("应有3个条目, 实际 %d", len(entries))
	}

	if entries[0].ID != 2 || entries[0].Rank != 1 || entries[0].Name != "Bob" {
		t.Fatalf("第一名应为Bob: %+v", entries[0])
	}

	// 并列余额共享名次, ID小者在前
	if entries[1].Rank != 2 || entries[2].Rank != 2 {
		t.Fatalf("并列余额应共享名次: %+v", entries[1:])
	}
	if entries[1].ID != 1 || entries[2].ID != 3 {
		t.Fatalf("并列时应按ID升序: %+v", entries[1:])
	}

	// 用户表中不存在的用户使用占位名称
	if entries[2].Name != fmt.Sprintf("Trader %d", int64(3)) {
		t.Fatalf("未知用户应使用占位名称, 实际 %q", entries[2].Name)
	}
}

func TestLeaderboardLimit(t *testing.T) {
	s, store, _ := newTestSettlement(50000)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := store.EnsureLedger(ctx, i); err != nil {
			t.Fatalf("准备账本失败: %v", err)
		}
	}

	entries, err := s.Leaderboard(ctx, 3)
	if err != nil {
		t.Fatalf("获取排行榜失败: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("limit=3时应返回3个条目, 实际 %d", len(entries))
	}
}
