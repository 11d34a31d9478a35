// Package cache provides the byte caches that sit in front of the card
// record store.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by every cache backend.
type Cache interface {
	// Get returns the cached value or an ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for ttl. A zero ttl uses the backend default and a
	// negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes every key under the configured prefix.
	Clear(ctx context.Context) error

	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Config holds the settings shared by all backends.
type Config struct {
	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration
	// Prefix is prepended to every key.
	Prefix string
}

// DefaultConfig returns the default cache settings.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "cardhub:",
	}
}

// ErrCacheMiss is returned when a key is absent or expired.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss reports whether err is, or wraps, a cache miss.
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// RecordKey is the key under which the record of a card is cached.
func RecordKey(id string) string {
	return "record:" + id
}
