package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// BindCache pins a sticky-routing key (built from a matched path and its
// query-parameter subset) to an account email, so repeated requests for
// the same logical resource land on the same upstream account
// (SPEC_FULL.md §4.3).
type BindCache struct {
	store  Store
	prefix string
	ttl    time.Duration

	scanGroup  singleflight.Group
	memoizeTTL time.Duration
	countMu    sync.Mutex
	countCache map[string]countEntry
}

type countEntry struct {
	count   int
	expires time.Time
}

// NewBindCache constructs a BindCache. memoizeTTL bounds how long a
// CountKeysForValue result is reused before a fresh store scan runs
// (DESIGN NOTE 9.9); 0 disables memoization.
func NewBindCache(store Store, ttl, memoizeTTL time.Duration) *BindCache {
	return &BindCache{
		store:      store,
		prefix:     "bind|",
		ttl:        ttl,
		memoizeTTL: memoizeTTL,
		countCache: make(map[string]countEntry),
	}
}

// MakeBindKey builds "bind|<matchedPath>|<k:v pairs sorted by key, joined
// by |>" from the matched path and the param subset relevant to it,
// exactly as SPEC_FULL.md §3 / §4.7 specifies.
func MakeBindKey(matchedPath string, sortedParams []string) string {
	key := "bind|" + matchedPath
	if len(sortedParams) > 0 {
		key += "|"
		for i, p := range sortedParams {
			if i > 0 {
				key += "|"
			}
			key += p
		}
	}
	return key
}

// Get returns the account email pinned to bindKey, if any.
func (b *BindCache) Get(ctx context.Context, bindKey string) (string, bool, error) {
	raw, err := b.store.Get(ctx, bindKey)
	if err != nil {
		if err == ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return string(raw), true, nil
}

// Set pins bindKey to email for the configured TTL.
func (b *BindCache) Set(ctx context.Context, bindKey, email string) error {
	return b.store.Set(ctx, bindKey, []byte(email), b.ttl)
}

// Remove evicts a pinning, e.g. when its account is no longer registered
// or a Worker is removed.
func (b *BindCache) Remove(ctx context.Context, bindKey string) error {
	return b.store.Delete(ctx, bindKey)
}

// Purge clears every bind-cache entry.
func (b *BindCache) Purge(ctx context.Context) error {
	b.countMu.Lock()
	b.countCache = make(map[string]countEntry)
	b.countMu.Unlock()
	return b.store.FlushPrefix(ctx, b.prefix)
}

// CountKeysForValue returns how many live bind entries currently point at
// email, used by the scheduler as a tiebreaker. Results are memoized for
// memoizeTTL and concurrent callers for the same email collapse onto one
// underlying scan via singleflight.
func (b *BindCache) CountKeysForValue(ctx context.Context, email string) (int, error) {
	if b.memoizeTTL > 0 {
		b.countMu.Lock()
		entry, ok := b.countCache[email]
		b.countMu.Unlock()
		if ok && time.Now().Before(entry.expires) {
			return entry.count, nil
		}
	}

	v, err, _ := b.scanGroup.Do(email, func() (any, error) {
		keys, err := b.store.ScanPrefix(ctx, b.prefix)
		if err != nil {
			return 0, err
		}
		count := 0
		for _, key := range keys {
			val, err := b.store.Get(ctx, key)
			if err != nil {
				continue
			}
			if string(val) == email {
				count++
			}
		}
		if b.memoizeTTL > 0 {
			b.countMu.Lock()
			b.countCache[email] = countEntry{count: count, expires: time.Now().Add(b.memoizeTTL)}
			b.countMu.Unlock()
		}
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
