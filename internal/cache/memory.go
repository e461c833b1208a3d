package cache

import (
	"sync"
	"time"

	"freqy/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      any
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired at now
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.Expiration)
}

// MemoryCache is an in-memory TTL cache safe for concurrent use.
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	done chan struct{}
	once sync.Once
}

// NewMemoryCache creates a cache whose entries live for ttl. Expired entries
// are swept every cleanup interval until Close; a zero interval disables the sweep.
func NewMemoryCache(ttl, cleanup time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}

	if cleanup > 0 {
		go cache.cleanupExpired(cleanup)
	}

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: c.now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired(c.now()) {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := c.now()
			c.mutex.Lock()
			for key, entry := range c.items {
				if entry.IsExpired(now) {
					delete(c.items, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

const allUsersKey = "users:all"

// UserCache caches the registered-user list shown on the leaderboard.
type UserCache struct {
	*MemoryCache
}

// NewUserCache creates a user cache with the given TTL.
func NewUserCache(ttl time.Duration) *UserCache {
	return &UserCache{
		MemoryCache: NewMemoryCache(ttl, time.Minute),
	}
}

// SetUsers caches the full user list. The slice is copied.
func (uc *UserCache) SetUsers(users []models.User) {
	copied := make([]models.User, len(users))
	copy(copied, users)
	uc.Set(allUsersKey, copied)
}

// GetUsers returns a copy of the cached user list.
func (uc *UserCache) GetUsers() ([]models.User, bool) {
	value, exists := uc.Get(allUsersKey)
	if !exists {
		return nil, false
	}

	users, ok := value.([]models.User)
	if !ok {
		return nil, false
	}
	copied := make([]models.User, len(users))
	copy(copied, users)
	return copied, true
}

// Invalidate drops the cached user list.
func (uc *UserCache) Invalidate() {
	uc.Delete(allUsersKey)
}
