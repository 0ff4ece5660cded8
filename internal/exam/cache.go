package exam

import (
	"context"
	"sync"
	"time"
)

// cachedInstanceStore is a read-through cache over an InstanceStore. Losing
// an entry only costs a re-fetch; correctness never depends on it.
type cachedInstanceStore struct {
	inner InstanceStore
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	inst     ExamInstance
	cachedAt time.Time
}

// NewCachedInstanceStore wraps inner with a TTL cache. ttl <= 0 disables
// caching and returns inner unchanged.
func NewCachedInstanceStore(inner InstanceStore, ttl time.Duration) InstanceStore {
	if ttl <= 0 {
		return inner
	}
	return &cachedInstanceStore{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

func (c *cachedInstanceStore) PutInstance(ctx context.Context, e *ExamInstance) error {
	if err := c.inner.PutInstance(ctx, e); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[e.ID] = cacheEntry{inst: *e, cachedAt: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *cachedInstanceStore) GetInstance(ctx context.Context, id string) (*ExamInstance, error) {
	c.mu.RLock()
	ent, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && c.now().Sub(ent.cachedAt) < c.ttl {
		cp := ent.inst
		return &cp, nil
	}
	inst, err := c.inner.GetInstance(ctx, id)
	if err != nil {
		if ok {
			c.mu.Lock()
			delete(c.entries, id)
			c.mu.Unlock()
		}
		return nil, err
	}
	c.mu.Lock()
	c.entries[id] = cacheEntry{inst: *inst, cachedAt: c.now()}
	c.mu.Unlock()
	return inst, nil
}

func (c *cachedInstanceStore) MarkFinished(ctx context.Context, id string, at int64) error {
	if err := c.inner.MarkFinished(ctx, id, at); err != nil {
		return err
	}
	// drop rather than patch; next read refetches the authoritative row
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}
