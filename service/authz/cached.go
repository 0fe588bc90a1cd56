package authz

import (
	"context"
	"time"

	"PPKitchen/service/topic"
	"PPKitchen/tools/security"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Authorizer is the lookup Cached wraps.
type Authorizer interface {
	CanRead(ctx context.Context, p security.Principal, t topic.Topic) (bool, error)
}

// Cached memoizes decisions for a short TTL. Errors are never cached.
type Cached struct {
	next  Authorizer
	cache *expirable.LRU[string, bool]
}

func NewCached(next Authorizer, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{next: next, cache: expirable.NewLRU[string, bool](size, nil, ttl)}
}

func (c *Cached) CanRead(ctx context.Context, p security.Principal, t topic.Topic) (bool, error) {
	key := p.UserID + "\x00" + p.Role + "\x00" + t.String()
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	allowed, err := c.next.CanRead(ctx, p, t)
	if err != nil {
		return false, err
	}
	c.cache.Add(key, allowed)
	return allowed, nil
}

// Purge drops every cached decision.
func (c *Cached) Purge() { c.cache.Purge() }

func (c *Cached) Len() int { return c.cache.Len() }
