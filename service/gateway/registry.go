package gateway

import (
	"sort"
	"sync"
	"time"

	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
)

// Registry is the set of live connections. Every change to a connection's
// mutable state goes through it, behind one lock.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byUser map[string]map[string]*Connection // userID -> (connID -> conn)
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Admit inserts c. A second connection with the same id is refused.
func (r *Registry) Admit(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.id]; ok {
		return errs.ErrDuplicateConnection.WrapMsg("admit", "connId", c.id)
	}
	r.byID[c.id] = c
	uid := c.principal.UserID
	mm := r.byUser[uid]
	if mm == nil {
		mm = make(map[string]*Connection)
		r.byUser[uid] = mm
	}
	mm[c.id] = c
	return nil
}

// Remove deletes the connection with id and returns it. Unknown ids are a no-op.
func (r *Registry) Remove(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) (*Connection, bool) {
	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	uid := c.principal.UserID
	if mm := r.byUser[uid]; mm != nil {
		delete(mm, id)
		if len(mm) == 0 {
			delete(r.byUser, uid)
		}
	}
	return c, true
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// ForEach calls action for every connection matching pred (nil matches all).
// Both run under the read lock and must not block.
func (r *Registry) ForEach(pred func(*Connection) bool, action func(*Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if pred == nil || pred(c) {
			action(c)
		}
	}
}

// forUser is ForEach restricted to one user through the user index.
func (r *Registry) forUser(userID string, action func(*Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byUser[userID] {
		action(c)
	}
}

// UserConnections returns the live connections of userID.
func (r *Registry) UserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	out := make([]*Connection, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Subscribe adds t to the connection's set. added is false when t was already
// held. limit <= 0 disables the per-connection cap.
func (r *Registry) Subscribe(id string, t topic.Topic, limit int) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false, errs.ErrConnectionNotFound.WrapMsg("subscribe", "connId", id)
	}
	if _, held := c.subscriptions[t]; held {
		return false, nil
	}
	if limit > 0 && len(c.subscriptions) >= limit {
		return false, errs.ErrSubscriptionLimit.WrapMsg("subscribe", "connId", id, "limit", limit)
	}
	c.subscriptions[t] = struct{}{}
	return true, nil
}

// Unsubscribe removes t. removed is false when t was not held.
func (r *Registry) Unsubscribe(id string, t topic.Topic) (removed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false, errs.ErrConnectionNotFound.WrapMsg("unsubscribe", "connId", id)
	}
	if _, held := c.subscriptions[t]; !held {
		return false, nil
	}
	delete(c.subscriptions, t)
	return true, nil
}

// Touch records liveness for id at now and clears any outstanding probe.
func (r *Registry) Touch(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.lastLiveness = now
	c.pendingHeartbeat = false
	return true
}

// State returns a copy of the connection's mutable state, topics sorted.
func (r *Registry) State(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return State{}, false
	}
	ts := make([]topic.Topic, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].String() < ts[j].String() })
	return State{
		Subscriptions:    ts,
		LastLiveness:     c.lastLiveness,
		PendingHeartbeat: c.pendingHeartbeat,
	}, true
}

// sweep runs one heartbeat round. Connections with an outstanding probe and
// no liveness for longer than timeout are removed and returned as evicted;
// every other connection is marked pending and returned as probed.
func (r *Registry) sweep(now time.Time, timeout time.Duration) (evicted, probed []*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.byID {
		if c.pendingHeartbeat && now.Sub(c.lastLiveness) > timeout {
			r.removeLocked(id)
			evicted = append(evicted, c)
			continue
		}
		c.pendingHeartbeat = true
		probed = append(probed, c)
	}
	return evicted, probed
}

// drain removes and returns every connection.
func (r *Registry) drain() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.byID = make(map[string]*Connection)
	r.byUser = make(map[string]map[string]*Connection)
	return out
}

// Stats counts live connections.
type Stats struct {
	Total     int            `json:"total"`
	Users     int            `json:"users"`
	ByVariant map[string]int `json:"byVariant"`
	ByDevice  map[string]int `json:"byDevice"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Total:     len(r.byID),
		Users:     len(r.byUser),
		ByVariant: make(map[string]int),
		ByDevice:  make(map[string]int),
	}
	for _, c := range r.byID {
		s.ByVariant[c.variant]++
		s.ByDevice[string(c.deviceClass)]++
	}
	return s
}

// subscribedLocked reports whether c holds t. The caller holds the registry lock.
func (c *Connection) subscribedLocked(t topic.Topic) bool {
	_, ok := c.subscriptions[t]
	return ok
}
