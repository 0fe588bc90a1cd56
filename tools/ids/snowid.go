package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	seqBits  = 12
	nodeBits = 10
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator hands out snowflake ids: 41 bits of milliseconds since epoch,
// 10 bits of node id and a 12 bit sequence. Ids from one generator are strictly
// increasing, so they are never reused during a process lifetime.
type Generator struct {
	mu     sync.Mutex
	now    func() time.Time
	nodeID int64
	seq    int64
	lastMS int64
}

// NewGenerator builds a generator for nodeID (0..1023; out of range falls back to 1).
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Generator{now: time.Now, nodeID: nodeID}
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.millis()
	if now < g.lastMS {
		// clock went backwards; keep issuing from the last timestamp
		now = g.lastMS
	}
	if now == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.lastMS {
				now = g.millis()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	ts := now & (1<<41 - 1)
	return ts<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

func (g *Generator) millis() int64 {
	return g.now().Sub(epoch).Milliseconds()
}

var (
	defaultGen = NewGenerator(1)
	defaultMu  sync.RWMutex
)

// SetNodeID replaces the default generator; call it once from main.
func SetNodeID(nodeID int64) {
	defaultMu.Lock()
	defaultGen = NewGenerator(nodeID)
	defaultMu.Unlock()
}

func Generate() int64 {
	defaultMu.RLock()
	g := defaultGen
	defaultMu.RUnlock()
	return g.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}
