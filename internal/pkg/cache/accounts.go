package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
)

const (
	accountsNamespace = "ledger"
	accountsKey       = "accounts"
)

// AccountCache caches the chart of accounts. Misses and redis errors are
// both reported as a miss.
type AccountCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewAccountCache(c *Cache, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AccountCache{cache: c, ttl: ttl}
}

func (a *AccountCache) GetAccounts(ctx context.Context) ([]*domain.Account, bool) {
	val, err := a.cache.Get(ctx, accountsNamespace, accountsKey)
	if err != nil {
		return nil, false
	}
	var accounts []*domain.Account
	if err := json.Unmarshal([]byte(val), &accounts); err != nil {
		return nil, false
	}
	return accounts, true
}

func (a *AccountCache) SetAccounts(ctx context.Context, accounts []*domain.Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return a.cache.Set(ctx, accountsNamespace, accountsKey, data, a.ttl)
}

func (a *AccountCache) InvalidateAccounts(ctx context.Context) error {
	return a.cache.Delete(ctx, accountsNamespace, accountsKey)
}
