// ABOUTME: Tests for the dedupe cache
// ABOUTME: Verifies TTL expiry, eviction, and basic mark/check behavior

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_MarkAndCheck(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.Check("key-1"))
	c.Mark("key-1")
	assert.True(t, c.Check("key-1"))
	assert.False(t, c.Check("key-2"))
}

func TestCache_ExpiredKeysAreForgotten(t *testing.T) {
	c := New(20*time.Millisecond, 100)

	c.Mark("key-1")
	assert.True(t, c.Check("key-1"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.Check("key-1"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c := New(time.Minute, 3)

	for i := 0; i < 4; i++ {
		c.Mark(fmt.Sprintf("key-%d", i))
		time.Sleep(time.Millisecond)
	}

	assert.LessOrEqual(t, c.Len(), 3)
	assert.False(t, c.Check("key-0"), "oldest key should have been evicted")
	assert.True(t, c.Check("key-3"))
}
