package application

import (
	"sync"
	"time"

	"github.com/careerforge/creditledger/internal/domain/model"
)

// cacheEntry is one cached balance plus the time it was fetched from the
// authoritative store.
type cacheEntry struct {
	balance   model.CreditBalance
	fetchedAt time.Time
}

// BalanceCache holds the last known balance per principal for fast gating
// decisions. It is advisory only: a Peek result may be used to disable an
// action early, never to authorize a debit. Entries older than the TTL are
// reported as absent so stale data is never presented as authoritative.
type BalanceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewBalanceCache creates a cache whose entries expire after ttl.
func NewBalanceCache(ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Peek returns the cached balance for principal if it is still fresh.
func (c *BalanceCache) Peek(principal string) (model.CreditBalance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[principal]
	if !ok {
		return model.CreditBalance{}, false
	}
	if c.now().Sub(entry.fetchedAt) > c.ttl {
		delete(c.entries, principal)
		return model.CreditBalance{}, false
	}
	return entry.balance, true
}

// Put overwrites the entry for a principal with an authoritative balance.
func (c *BalanceCache) Put(balance model.CreditBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[balance.Principal] = cacheEntry{balance: balance, fetchedAt: c.now()}
}

// ApplyDelta speculatively adjusts an existing entry right after a commit,
// before reconciliation overwrites it with the authoritative value. A missing
// or expired entry is left absent; the speculative view is never created
// from nothing.
func (c *BalanceCache) ApplyDelta(principal string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[principal]
	if !ok {
		return
	}
	entry.balance.Remaining += delta
	if entry.balance.Remaining < 0 {
		// The authoritative store rejected or will reject this; drop the
		// speculative view instead of displaying a negative balance.
		delete(c.entries, principal)
		return
	}
	entry.balance.UpdatedAt = c.now()
	c.entries[principal] = entry
}

// Invalidate drops the entry for principal.
func (c *BalanceCache) Invalidate(principal string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, principal)
}
