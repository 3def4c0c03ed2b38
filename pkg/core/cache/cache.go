package cache

import (
	"sync"
	"time"
)

// ResultCache 结果缓存接口（对外导出）
// 用于保留已完成批量操作的结果，供后续查询
type ResultCache[T any] interface {
	// Set 设置缓存值
	// key: 缓存键
	// value: 结果数据
	// ttl: 缓存有效期
	Set(key string, value T, ttl time.Duration)

	// Get 获取缓存值
	// 返回: 结果数据和是否存在
	Get(key string) (T, bool)

	// Delete 删除缓存值
	Delete(key string)

	// Len 当前缓存条目数
	Len() int

	// Close 停止后台清理协程
	Close()
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry[T any] struct {
	value      T
	expireTime time.Time
}

// MemoryResultCache 内存结果缓存实现（对外导出）
type MemoryResultCache[T any] struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry[T]
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryResultCache 创建内存结果缓存实例（对外导出）
func NewMemoryResultCache[T any]() *MemoryResultCache[T] {
	c := &MemoryResultCache[T]{
		cache: make(map[string]*cacheEntry[T]),
		stop:  make(chan struct{}),
	}
	// 启动清理协程，定期清理过期缓存
	go c.cleanupExpired()
	return c
}

// Set 设置缓存值
func (c *MemoryResultCache[T]) Set(key string, value T, ttl time.Duration) {
	if key == "" {
		return // 空key，忽略
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheEntry[T]{
		value:      value,
		expireTime: time.Now().Add(ttl),
	}
}

// Get 获取缓存值
func (c *MemoryResultCache[T]) Get(key string) (T, bool) {
	var zero T
	if key == "" {
		return zero, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return zero, false
	}

	// 过期条目视为不存在，由清理协程删除
	if time.Now().After(entry.expireTime) {
		return zero, false
	}

	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryResultCache[T]) Delete(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, key)
}

// Len 当前缓存条目数
func (c *MemoryResultCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止后台清理协程
func (c *MemoryResultCache[T]) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryResultCache[T]) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute) // 每分钟清理一次
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.cache {
				if now.After(entry.expireTime) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
