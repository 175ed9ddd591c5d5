package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"paper_perps/models"
)

// 同一用户的并发写通过 WATCH/MULTI 乐观并发控制串行化：
// 写入前账本行被其他请求改动时本次事务失败，整个操作重读重算。
const maxCASAttempts = 5

// ErrTooMuchContention 重试次数耗尽
var ErrTooMuchContention = errors.New("ledger update contention, retries exhausted")

// EnsureLedger 注册时写入默认账本，已存在则不覆盖
func (c *Client) EnsureLedger(ctx context.Context, userID int64) error {
	data, err := json.Marshal(models.DefaultLedger())
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, ledgerKey(userID), data, 0).Err()
}

// GetLedger 读取并宽松修复一个用户的账本行。
// 行不存在时返回默认账本（repaired=true）。
func (c *Client) GetLedger(ctx context.Context, userID int64) (*models.LedgerRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, ledgerKey(userID)).Result()
	if err == redis.Nil {
		return models.DefaultLedger(), true, nil
	}
	if err != nil {
		return nil, false, err
	}

	record, repaired := models.ParseLedger([]byte(raw))
	if repaired {
		logrus.Warnf("用户 %d 的账本数据已修复", userID)
	}
	return record, repaired, nil
}

// UpdateLedger 对单个用户的账本行做原子的读-改-写。
// mutate 返回错误时放弃写入并原样返回该错误；
// 并发冲突时整个闭包重跑，最多 maxCASAttempts 次。
func (c *Client) UpdateLedger(ctx context.Context, userID int64, mutate func(record *models.LedgerRecord) error) (*models.LedgerRecord, error) {
	key := ledgerKey(userID)
	var updated *models.LedgerRecord

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		record, repaired := models.ParseLedger([]byte(raw))
		if repaired {
			logrus.Warnf("用户 %d 的账本数据已修复", userID)
		}

		if err := mutate(record); err != nil {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0) // 永不过期
			return nil
		})
		if err != nil {
			return err
		}

		updated = record
		return nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			logrus.Debugf("用户 %d 账本写入冲突，重试 %d", userID, attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, ErrTooMuchContention
}

// TransferLedgers 对两个用户的账本行做原子更新（转账）。
// 两个键按用户ID升序一起 WATCH，两行要么都写入要么都不写。
func (c *Client) TransferLedgers(ctx context.Context, senderID, recipientID int64, mutate func(sender, recipient *models.LedgerRecord) error) (*models.LedgerRecord, error) {
	senderKey := ledgerKey(senderID)
	recipientKey := ledgerKey(recipientID)

	// 固定的键顺序让对向转账的重试行为对称
	watchKeys := []string{senderKey, recipientKey}
	if recipientID < senderID {
		watchKeys = []string{recipientKey, senderKey}
	}

	var updatedSender *models.LedgerRecord

	txf := func(tx *redis.Tx) error {
		rawSender, err := tx.Get(ctx, senderKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		rawRecipient, err := tx.Get(ctx, recipientKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		sender, _ := models.ParseLedger([]byte(rawSender))
		recipient, _ := models.ParseLedger([]byte(rawRecipient))

		if err := mutate(sender, recipient); err != nil {
			return err
		}

		senderData, err := json.Marshal(sender)
		if err != nil {
			return err
		}
		recipientData, err := json.Marshal(recipient)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, senderKey, senderData, 0)
			pipe.Set(ctx, recipientKey, recipientData, 0)
			return nil
		})
		if err != nil {
			return err
		}

		updatedSender = sender
		return nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, watchKeys...)
		if err == redis.TxFailedErr {
			logrus.Debugf("转账 %d -> %d 写入冲突，重试 %d", senderID, recipientID, attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return updatedSender, nil
	}

	return nil, ErrTooMuchContention
}

// ScanLedgers 扫描全部账本行（排行榜投影用，O(用户数)）
func (c *Client) ScanLedgers(ctx context.Context) (map[int64]*models.LedgerRecord, error) {
	keys, err := c.rdb.Keys(ctx, fmt.Sprintf("%s:*", KeyLedger)).Result()
	if err != nil {
		return nil, err
	}

	records := make(map[int64]*models.LedgerRecord, len(keys))
	for _, key := range keys {
		idPart := strings.TrimPrefix(key, KeyLedger+":")
		userID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			logrus.Warnf("跳过无法解析的账本键: %s", key)
			continue
		}

		raw, err := c.rdb.Get(ctx, key).Result()
		if err != nil {
			logrus.Errorf("读取账本数据失败 %s: %v", key, err)
			continue
		}

		record, _ := models.ParseLedger([]byte(raw))
		records[userID] = record
	}

	return records, nil
}
