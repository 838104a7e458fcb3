package cache

import (
	"context"
	"time"
)

// BytesCache is a minimal cache API storing raw response bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
