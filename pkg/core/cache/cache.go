package cache

import (
	"sync"
	"time"
)

// Cache 带过期时间的键值缓存接口（对外导出）
type Cache[V any] interface {
	// Set 设置缓存值，ttl<=0表示使用默认有效期
	Set(key string, value V, ttl time.Duration)
	// Get 获取缓存值，过期视为不存在
	Get(key string) (V, bool)
	// Delete 删除缓存值
	Delete(key string)
	// Clear 清空所有缓存
	Clear()
	// Len 当前条目数（含尚未清理的过期条目）
	Len() int
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry[V any] struct {
	value      V
	expireTime time.Time
}

// MemoryCache 内存TTL缓存实现（对外导出）
type MemoryCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry[V]
	defaultTTL time.Duration
	now        func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache 创建内存缓存实例（对外导出）
// cleanInterval>0 时启动后台协程定期清理过期条目，需调用Stop释放
func NewMemoryCache[V any](defaultTTL, cleanInterval time.Duration) *MemoryCache[V] {
	c := &MemoryCache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	if cleanInterval > 0 {
		go c.cleanupExpired(cleanInterval)
	}
	return c
}

// Set 设置缓存值
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	if key == "" {
		return // 空key，忽略
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry[V]{
		value:      value,
		expireTime: c.now().Add(ttl),
	}
}

// Get 获取缓存值
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return zero, false
	}

	if c.now().After(entry.expireTime) {
		c.mu.Lock()
		// 加写锁期间可能已被重新写入
		if cur, ok := c.entries[key]; ok && cur == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear 清空所有缓存
func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry[V])
}

// Len 返回条目数
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop 停止后台清理协程
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryCache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *MemoryCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expireTime) {
			delete(c.entries, key)
		}
	}
}

var _ Cache[string] = (*MemoryCache[string])(nil)
