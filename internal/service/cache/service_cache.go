package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "RoundPull/pkg/cache"
)

// ServiceCache adapts a pkg/cache.Service (Redis in production) to BytesCache.
type ServiceCache struct {
	svc pkgcache.Service
}

func NewServiceCache(svc pkgcache.Service) *ServiceCache {
	return &ServiceCache{svc: svc}
}

func (c *ServiceCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	if err := c.svc.Get(ctx, key, &b); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (c *ServiceCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.svc.Set(ctx, key, value, ttl)
}

var (
	_ BytesCache = (*TTLCache)(nil)
	_ BytesCache = (*ServiceCache)(nil)
)
