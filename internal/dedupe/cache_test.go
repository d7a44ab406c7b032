// ABOUTME: Tests for the seen-id cache behind timeline idempotency
// ABOUTME: Covers TTL expiry, capacity eviction and concurrent marking

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Seen_MarksNewID(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"), "first sighting should not be a duplicate")
	assert.True(t, c.Seen("msg-1"), "second sighting should be a duplicate")
}

func TestCache_Seen_ExpiresAfterTTL(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("expiring"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("expiring"), "expired id should count as new again")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(5*time.Minute, 3)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	c.Seen("d") // evicts a

	assert.False(t, c.Seen("a"), "oldest id should have been evicted")
	assert.True(t, c.Seen("d"))
}

func TestCache_ReSightingRefreshesOrder(t *testing.T) {
	c := New(5*time.Minute, 3)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	c.Seen("a") // moves a to the back
	c.Seen("d") // should evict b, not a

	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
}

func TestCache_ConcurrentSeen(t *testing.T) {
	c := New(5*time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Seen(fmt.Sprintf("worker-%d-msg-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, c.Seen("worker-0-msg-0"))
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
