package core

import (
	"context"
	"fmt"
	"sort"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	USDBalance float64 `json:"usdBalance"`
}

// Leaderboard 按USD余额降序的用户排行，相同余额共享名次
func (s *Settlement) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	ledgers, err := s.store.ScanLedgers(ctx)
	if err != nil {
		return nil, StorageError(err)
	}

	entries := make([]LeaderboardEntry, 0, len(ledgers))
	ids := make([]int64, 0, len(ledgers))
	for userID, rec := range ledgers {
		entries = append(entries, LeaderboardEntry{
			ID:         userID,
			USDBalance: rec.Wallet.USDBalance,
		})
		ids = append(ids, userID)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].USDBalance != entries[j].USDBalance {
			return entries[i].USDBalance > entries[j].USDBalance
		}
		return entries[i].ID < entries[j].ID
	})

	if len(entries) > limit {
		entries = entries[:limit]
		ids = ids[:0]
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}

	users, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, StorageError(err)
	}

	// 相同余额共享名次，名次连续不跳号
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].USDBalance != entries[i-1].USDBalance {
			rank++
		}
		entries[i].Rank = rank
		if u, ok := users[entries[i].ID]; ok {
			entries[i].Name = u.Name
		} else {
			entries[i].Name = fmt.Sprintf("Trader %d", entries[i].ID)
		}
	}

	return entries, nil
}
