package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"PPKitchen/tools/errs"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresencePrefix = "kitchen:presence:"
	defaultPresenceTTL    = 2 * time.Minute
)

// presence key: <prefix><userId>, a hash of connId -> "<nodeId>|<deviceClass>".
// The key TTL is renewed on every heartbeat reply, so a crashed node's entries
// age out on their own.

// PresenceEntry is one live connection of a user.
type PresenceEntry struct {
	ConnID string `json:"connectionId"`
	NodeID string `json:"nodeId"`
	Device string `json:"deviceClass"`
}

// Presence records which gateway node holds each user's connections.
type Presence struct {
	rdb    redis.Cmdable
	nodeID string
	prefix string
	ttl    time.Duration
}

type PresenceOption func(*Presence)

func WithPrefix(prefix string) PresenceOption {
	return func(p *Presence) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) PresenceOption {
	return func(p *Presence) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func NewPresence(rdb redis.Cmdable, nodeID string, opts ...PresenceOption) *Presence {
	p := &Presence{rdb: rdb, nodeID: nodeID, prefix: defaultPresencePrefix, ttl: defaultPresenceTTL}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Presence) key(userID string) string { return p.prefix + userID }

// Online adds connID to the user's hash and renews the key.
func (p *Presence) Online(ctx context.Context, userID, connID, device string) error {
	if userID == "" || connID == "" {
		return errs.New("presence online: empty id", "userId", userID, "connId", connID)
	}
	key := p.key(userID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, connID, p.nodeID+"|"+device)
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	return errs.WrapMsg(err, "presence online", "userId", userID)
}

// Refresh renews the user's key without touching its fields.
func (p *Presence) Refresh(ctx context.Context, userID string) error {
	return errs.WrapMsg(p.rdb.Expire(ctx, p.key(userID), p.ttl).Err(), "presence refresh", "userId", userID)
}

// Offline removes connID. The key disappears with its last field.
func (p *Presence) Offline(ctx context.Context, userID, connID string) error {
	return errs.WrapMsg(p.rdb.HDel(ctx, p.key(userID), connID).Err(), "presence offline", "userId", userID)
}

// Lookup lists the user's live connections across nodes, sorted by connId.
func (p *Presence) Lookup(ctx context.Context, userID string) ([]PresenceEntry, error) {
	m, err := p.rdb.HGetAll(ctx, p.key(userID)).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup", "userId", userID)
	}
	out := make([]PresenceEntry, 0, len(m))
	for connID, v := range m {
		node, device, _ := strings.Cut(v, "|")
		out = append(out, PresenceEntry{ConnID: connID, NodeID: node, Device: device})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out, nil
}

func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.HLen(ctx, p.key(userID)).Result()
	if err != nil {
		return false, errs.WrapMsg(err, "presence lookup", "userId", userID)
	}
	return n > 0, nil
}
