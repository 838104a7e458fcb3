package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RoundPull/internal/domain/models"
	"RoundPull/internal/domain/repository"
	pkgcache "RoundPull/pkg/cache"
)

// CacheSessionStore keeps escalation sessions in a cache.Service with a sliding TTL.
type CacheSessionStore struct {
	cache pkgcache.Service
	ttl   time.Duration
}

// NewCacheSessionStore creates a session store. Keys live under "session:<id>".
func NewCacheSessionStore(c pkgcache.Service, ttl time.Duration) repository.SessionStore {
	return &CacheSessionStore{cache: c, ttl: ttl}
}

func sessionKey(id string) string { return pkgcache.Key("session", id) }

func (s *CacheSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.cache.Get(ctx, sessionKey(id), &sess); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *CacheSessionStore) Save(ctx context.Context, sess *models.Session) error {
	if err := s.cache.Set(ctx, sessionKey(sess.ID), sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	ok, err := s.cache.Exists(ctx, sessionKey(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return repository.ErrNotFound
	}
	return s.cache.Delete(ctx, sessionKey(id))
}
