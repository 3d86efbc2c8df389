package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// LRU is a bounded in-process cache. When full, the entry that was inserted
// least recently is evicted; reads do not refresh an entry. Every entry also
// carries its own deadline.
type LRU struct {
	store *expirable.LRU[string, entry]
	now   func() time.Time
}

// NewLRU creates a cache holding at most size entries. maxTTL bounds the
// lifetime of any entry regardless of the ttl passed to Set.
func NewLRU(size int, maxTTL time.Duration) *LRU {
	if size <= 0 {
		size = 1
	}
	return &LRU{
		store: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now:   time.Now,
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.store.Peek(key)
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.store.Remove(key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.store.Add(key, e)
	return nil
}

func (c *LRU) Invalidate(_ context.Context, key string) error {
	c.store.Remove(key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *LRU) Len() int {
	return c.store.Len()
}
