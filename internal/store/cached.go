package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/cache"
)

// CachedStore reads records through a cache. Writes go to the backing store
// first and then drop the cached copy.
type CachedStore struct {
	backing Store
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedStore wraps backing with c. A zero ttl uses the cache default.
func NewCachedStore(backing Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{backing: backing, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Record, error) {
	key := cache.RecordKey(id)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		rec, decodeErr := decodeRecord(data)
		if decodeErr == nil {
			return rec, nil
		}
		s.logger.Warn("discarding undecodable cached record", zap.String("card", id), zap.Error(decodeErr))
		s.evict(ctx, id)
	case !cache.IsCacheMiss(err):
		s.logger.Warn("record cache read failed", zap.String("card", id), zap.Error(err))
	}

	rec, err := s.backing.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := encodeRecord(rec); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("record cache write failed", zap.String("card", id), zap.Error(err))
		}
	}
	return rec, nil
}

func (s *CachedStore) Put(ctx context.Context, rec *Record) error {
	if err := s.backing.Put(ctx, rec); err != nil {
		return err
	}
	s.evict(ctx, rec.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.backing.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

// List always reads the backing store.
func (s *CachedStore) List(ctx context.Context) ([]*Record, error) {
	return s.backing.List(ctx)
}

// Close closes the backing store and the cache.
func (s *CachedStore) Close() error {
	err := s.backing.Close()
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *CachedStore) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cache.RecordKey(id)); err != nil {
		s.logger.Warn("record cache eviction failed", zap.String("card", id), zap.Error(err))
	}
}
