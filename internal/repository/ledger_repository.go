package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"RoundPull/internal/domain/models"
	"RoundPull/internal/domain/repository"
	pkgcache "RoundPull/pkg/cache"
)

// FileLedgerStore keeps the ledger as a JSON array on local disk.
type FileLedgerStore struct {
	path string
}

// NewFileLedgerStore creates a file-backed ledger store. The parent directory is created on first save.
func NewFileLedgerStore(path string) repository.LedgerStore {
	return &FileLedgerStore{path: path}
}

// Save rewrites the whole ledger. It writes a sibling temp file, syncs it and renames it into place,
// so readers never observe a partial ledger.
func (s *FileLedgerStore) Save(ctx context.Context, entries []models.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ledger dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

// Load reads the ledger. A missing file is an empty ledger.
func (s *FileLedgerStore) Load(ctx context.Context) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var entries []models.LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", s.path, err)
	}
	return entries, nil
}

// CacheLedgerStore keeps the ledger under a single key of a cache.Service (Redis in production).
type CacheLedgerStore struct {
	cache pkgcache.Service
	key   string
	ttl   time.Duration
}

// NewCacheLedgerStore creates a cache-backed ledger store. ttl <= 0 keeps the key for the cache default.
func NewCacheLedgerStore(c pkgcache.Service, key string, ttl time.Duration) repository.LedgerStore {
	return &CacheLedgerStore{cache: c, key: key, ttl: ttl}
}

func (s *CacheLedgerStore) Save(ctx context.Context, entries []models.LedgerEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := s.cache.Set(ctx, s.key, string(data), s.ttl); err != nil {
		return fmt.Errorf("cache ledger set: %w", err)
	}
	return nil
}

func (s *CacheLedgerStore) Load(ctx context.Context) ([]models.LedgerEntry, error) {
	var raw string
	if err := s.cache.Get(ctx, s.key, &raw); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache ledger get: %w", err)
	}
	var entries []models.LedgerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse cached ledger: %w", err)
	}
	return entries, nil
}
