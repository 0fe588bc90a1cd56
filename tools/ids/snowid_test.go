package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorUniqueUnderConcurrency(t *testing.T) {
	g := NewGenerator(7)

	const workers, perWorker = 8, 2000
	out := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				out <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range out {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratorIncreasesWhenClockGoesBack(t *testing.T) {
	g := NewGenerator(3)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }
	first := g.Next()

	g.now = func() time.Time { return base.Add(-time.Second) }
	second := g.Next()

	assert.Greater(t, second, first)
}

func TestGeneratorEncodesNode(t *testing.T) {
	g := NewGenerator(42)
	id := g.Next()
	assert.Equal(t, int64(42), (id>>seqBits)&maxNode)
}

func TestNodeIDOutOfRange(t *testing.T) {
	assert.Equal(t, int64(1), NewGenerator(5000).nodeID)
	assert.Equal(t, int64(1), NewGenerator(-1).nodeID)
}

func TestGenerateString(t *testing.T) {
	a, b := GenerateString(), GenerateString()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
