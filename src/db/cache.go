package db

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ttlCache is a size-bounded ristretto cache whose entries expire after ttl.
type ttlCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newTTLCache(name string, maxEntries int64, ttl time.Duration) (*ttlCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10, // number of keys to track frequency of
		MaxCost:     maxEntries,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s cache: %w", name, err)
	}
	return &ttlCache{cache: c, ttl: ttl}, nil
}

// Wait blocks until buffered writes are applied.
func (c *ttlCache) Wait() {
	c.cache.Wait()
}

func (c *ttlCache) Close() {
	c.cache.Close()
}

// ItemCache maps Plaid item ids to bank account ids so webhooks skip the
// item_id lookup. Only the id is cached; callers load the row itself from
// the store and drop the entry if it no longer carries the item.
type ItemCache struct {
	*ttlCache
}

func NewItemCache(ttl time.Duration) (*ItemCache, error) {
	c, err := newTTLCache("item", 10000, ttl)
	if err != nil {
		return nil, err
	}
	return &ItemCache{c}, nil
}

func itemKey(itemID string) string {
	return "item:" + itemID
}

func (c *ItemCache) BankAccountID(itemID string) (string, bool) {
	v, found := c.cache.Get(itemKey(itemID))
	if !found {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func (c *ItemCache) SetBankAccountID(itemID, bankAccountID string) {
	c.cache.SetWithTTL(itemKey(itemID), bankAccountID, 1, c.ttl)
}

func (c *ItemCache) Invalidate(itemID string) {
	c.cache.Del(itemKey(itemID))
}

// SessionCache remembers recently provisioned session users. Eviction only
// costs one extra idempotent upsert.
type SessionCache struct {
	*ttlCache
}

func NewSessionCache(ttl time.Duration) (*SessionCache, error) {
	c, err := newTTLCache("session", 50000, ttl)
	if err != nil {
		return nil, err
	}
	return &SessionCache{c}, nil
}

func (c *SessionCache) Seen(key string) bool {
	_, found := c.cache.Get("session:" + key)
	return found
}

func (c *SessionCache) Remember(key string) {
	c.cache.SetWithTTL("session:"+key, struct{}{}, 1, c.ttl)
}
