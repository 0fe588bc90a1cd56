package natsx

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// IdemStore remembers message ids for a while.
type IdemStore interface {
	// SeenOnce records key and reports whether it was already there.
	SeenOnce(key string) bool
}

type lruIdem struct {
	cache *expirable.LRU[string, struct{}]
}

// NewMemIdem keeps up to size ids for ttl each in process memory.
func NewMemIdem(size int, ttl time.Duration) IdemStore {
	if size <= 0 {
		size = 100_000
	}
	return &lruIdem{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (l *lruIdem) SeenOnce(key string) bool {
	if _, ok := l.cache.Get(key); ok {
		return true
	}
	l.cache.Add(key, struct{}{})
	return false
}

func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{MsgIDHeader, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware skips messages whose id was already handled. Messages
// without an id always pass.
func NatsxIdemMiddleware(store IdemStore) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id != "" && store.SeenOnce(id) {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
