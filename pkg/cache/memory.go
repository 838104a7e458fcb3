package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const defaultMemoryTTL = 7 * 24 * time.Hour

// MemoryItem stores an encoded value with expiration.
type MemoryItem struct {
	Value    []byte
	ExpireAt time.Time
}

func (m *MemoryItem) expiredAt(now time.Time) bool {
	return now.After(m.ExpireAt)
}

// MemoryCache implements Service in process with LRU eviction.
// Values are encoded on Set the same way RedisCache encodes them, so callers see identical semantics.
type MemoryCache struct {
	mu    sync.Mutex
	items *simplelru.LRU[string, *MemoryItem]
	now   func() time.Time

	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// NewLRU only fails for a non-positive size, which the options rule out.
	items, _ := simplelru.NewLRU[string, *MemoryItem](cfg.MaxSize, nil)
	mc := &MemoryCache{
		items:  items,
		now:    time.Now,
		ticker: time.NewTicker(cfg.CleanupInterval),
		done:   make(chan struct{}),
	}
	go mc.sweepLoop()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	mc.put(key, data, expiration)
	mc.mu.Unlock()
	return nil
}

// put stores data, evicting the least recently used key when full. Caller holds the mutex.
func (mc *MemoryCache) put(key string, data []byte, expiration time.Duration) {
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}
	mc.items.Add(key, &MemoryItem{Value: data, ExpireAt: mc.now().Add(expiration)})
}

// lookup returns a live item, refreshing its recency, and drops it if expired.
// Caller holds the mutex.
func (mc *MemoryCache) lookup(key string) (*MemoryItem, bool) {
	item, ok := mc.items.Get(key)
	if !ok {
		return nil, false
	}
	if item.expiredAt(mc.now()) {
		mc.items.Remove(key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.lookup(key)
	var data []byte
	if ok {
		data = append([]byte(nil), item.Value...)
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.items.Remove(key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if _, ok := mc.lookup(key); ok {
			return true, nil
		}
	}
	return false, nil
}

// Increment follows Redis INCR: a missing key starts at 0 and keeps no expiry of its own.
func (mc *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.lookup(key)
	if !ok {
		mc.put(key, []byte("1"), 0)
		return 1, nil
	}
	val, err := strconv.ParseInt(string(item.Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("increment %s: value is not an integer", key)
	}
	val++
	item.Value = []byte(strconv.FormatInt(val, 10))
	return val, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	item, ok := mc.lookup(key)
	if !ok {
		return false, nil
	}
	item.ExpireAt = mc.now().Add(expiration)
	return true, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.lookup(key); ok {
		return false, nil
	}
	mc.put(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len returns the number of stored keys, expired ones included until swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.items.Len()
}

// sweep removes expired keys without touching recency.
func (mc *MemoryCache) sweep() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	n := 0
	for _, key := range mc.items.Keys() {
		if item, ok := mc.items.Peek(key); ok && item.expiredAt(now) {
			mc.items.Remove(key)
			n++
		}
	}
	return n
}

func (mc *MemoryCache) sweepLoop() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.ticker.C:
			mc.sweep()
		}
	}
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
