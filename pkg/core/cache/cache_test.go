package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryResultCache_SetGet(t *testing.T) {
	c := NewMemoryResultCache[string]()
	defer c.Close()

	c.Set("run-1", "completed", time.Minute)

	value, ok := c.Get("run-1")
	assert.True(t, ok)
	assert.Equal(t, "completed", value)

	_, ok = c.Get("run-2")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryResultCache_Expiry(t *testing.T) {
	c := NewMemoryResultCache[int]()
	defer c.Close()

	c.Set("short", 42, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestMemoryResultCache_Delete(t *testing.T) {
	c := NewMemoryResultCache[string]()
	defer c.Close()

	c.Set("run-1", "done", time.Minute)
	c.Delete("run-1")

	_, ok := c.Get("run-1")
	assert.False(t, ok)

	// 空key忽略
	c.Set("", "ignored", time.Minute)
	assert.Equal(t, 0, c.Len())
}
