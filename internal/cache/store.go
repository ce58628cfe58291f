// Package cache implements the shared key/value store and the
// ResponseCache/BindCache built on top of it (SPEC_FULL.md §4.2-§4.4).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the minimal shared key/value contract the response and bind
// caches are built on: get, set-with-ttl, delete, flush-by-prefix,
// size-by-prefix, and scan-by-prefix. A Redis-backed implementation lives
// in redis_store.go; an in-memory implementation backs unit tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	FlushPrefix(ctx context.Context, prefix string) error
	SizePrefix(ctx context.Context, prefix string) (int64, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}
