package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/routerforge/acctrouter/internal/pkg/signature"
)

// RequestSummary is the human-readable preimage kept alongside a
// ResponseCache entry for the popularity-listing endpoint, since the
// blake2b digest key itself is not reversible.
type RequestSummary struct {
	Method string
	Path   string
	Query  string
}

// PopularEntry is one row of MostCommonRequests.
type PopularEntry struct {
	Key     string
	Summary RequestSummary
	Hits    int64
	Lookups int64
}

// ResponseCache is the hash-keyed, TTL'd cache of upstream responses
// described in SPEC_FULL.md §4.2: shared across all Workers and the HTTP
// front door, backed by a Store, with in-process popularity statistics.
type ResponseCache struct {
	store      Store
	prefix     string
	maxSize    int
	itemMax    int64
	sizeThresh int64
	defaultTTL time.Duration
	shortTTL   time.Duration

	mu         sync.Mutex
	order      []string // insertion order, oldest first, for FIFO eviction
	summaries  map[string]RequestSummary
	lookups    map[string]int64
	hits       map[string]int64
	loginsByKe map[string]map[string]struct{}
	totalHits  int64
	totalMiss  int64
}

// NewResponseCache constructs a ResponseCache. itemMaxSize caps entries
// accepted at all (larger bodies are not cached); sizeThreshold is the
// body size above which shortTTL is used instead of defaultTTL.
func NewResponseCache(store Store, maxSize int, itemMaxSize, sizeThreshold int64, defaultTTL, shortTTL time.Duration) *ResponseCache {
	return &ResponseCache{
		store:      store,
		prefix:     "k:",
		maxSize:    maxSize,
		itemMax:    itemMaxSize,
		sizeThresh: sizeThreshold,
		defaultTTL: defaultTTL,
		shortTTL:   shortTTL,
		summaries:  make(map[string]RequestSummary),
		lookups:    make(map[string]int64),
		hits:       make(map[string]int64),
		loginsByKe: make(map[string]map[string]struct{}),
	}
}

// MakeRequestKey derives the canonical cache key for one request.
func (c *ResponseCache) MakeRequestKey(method, path string, headers map[string]string, query string, body []byte) string {
	return signature.Key(signature.Encode(method, path, headers, query, body))
}

// Get looks up key, recording a lookup (and a hit, if found) unless
// countLookup is false (used for existence probes that should not skew
// statistics). On a recorded hit a non-empty login is also added to the
// key's set of requesting users.
func (c *ResponseCache) Get(ctx context.Context, key string, login string, countLookup bool) (Entry, bool, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			if countLookup {
				c.recordMiss(key, login)
			}
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	entry, err := DecodeEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	if countLookup {
		c.recordHit(key, login)
	}
	return entry, true, nil
}

func (c *ResponseCache) recordHit(key, login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups[key]++
	c.hits[key]++
	c.totalHits++
	if login != "" {
		set, ok := c.loginsByKe[key]
		if !ok {
			set = make(map[string]struct{})
			c.loginsByKe[key] = set
		}
		set[login] = struct{}{}
	}
}

func (c *ResponseCache) recordMiss(key, login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups[key]++
	c.totalMiss++
	if login != "" {
		set, ok := c.loginsByKe[key]
		if !ok {
			set = make(map[string]struct{})
			c.loginsByKe[key] = set
		}
		set[login] = struct{}{}
	}
}

// Set stores entry under key with summary as its preimage, applying size
// limits and evicting the oldest-inserted entries if over capacity.
// Entries larger than itemMax are silently not cached (mirroring the
// original's HTTP-cache item size cap).
func (c *ResponseCache) Set(ctx context.Context, key string, summary RequestSummary, entry Entry) error {
	if c.itemMax > 0 && int64(len(entry.Body)) > c.itemMax {
		return nil
	}
	ttl := c.defaultTTL
	if c.sizeThresh > 0 && int64(len(entry.Body)) > c.sizeThresh {
		ttl = c.shortTTL
	}
	encoded, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, encoded, ttl); err != nil {
		return err
	}

	c.mu.Lock()
	if _, exists := c.summaries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.summaries[key] = summary
	evicted := c.evictLocked()
	c.mu.Unlock()

	for _, evKey := range evicted {
		_ = c.store.Delete(ctx, evKey)
	}
	return nil
}

// evictLocked removes oldest-inserted entries until under maxSize.
// Caller must hold c.mu.
func (c *ResponseCache) evictLocked() []string {
	if c.maxSize <= 0 || len(c.order) <= c.maxSize {
		return nil
	}
	var evicted []string
	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.summaries, oldest)
		delete(c.lookups, oldest)
		delete(c.hits, oldest)
		delete(c.loginsByKe, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Remove deletes key from both the store and local bookkeeping.
func (c *ResponseCache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.summaries, key)
	delete(c.lookups, key)
	delete(c.hits, key)
	delete(c.loginsByKe, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c.store.Delete(ctx, key)
}

// Purge clears every cached entry and resets local statistics.
func (c *ResponseCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	c.order = nil
	c.summaries = make(map[string]RequestSummary)
	c.lookups = make(map[string]int64)
	c.hits = make(map[string]int64)
	c.loginsByKe = make(map[string]map[string]struct{})
	c.totalHits = 0
	c.totalMiss = 0
	c.mu.Unlock()
	return c.store.FlushPrefix(ctx, c.prefix)
}

// Size reports the number of entries currently tracked.
func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Capacity returns the configured maximum entry count.
func (c *ResponseCache) Capacity() int { return c.maxSize }

// Hits, Misses, and HitRate report aggregate cache statistics.
func (c *ResponseCache) Hits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalHits
}

func (c *ResponseCache) Misses() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalMiss
}

func (c *ResponseCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.totalHits + c.totalMiss
	if total == 0 {
		return 0
	}
	return float64(c.totalHits) / float64(total)
}

// LoginsForKey returns the logins observed looking up key.
func (c *ResponseCache) LoginsForKey(key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.loginsByKe[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for login := range set {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// MostCommonRequests returns the n keys with the highest lookup counts,
// descending, ties broken by key for determinism — mirroring
// `HTTPCache.most_common_lookups` → `self._lookups.most_common(n)` in the
// ground-truth original, which ranks by lookups (hits+misses), not hits.
// n < 0 returns every tracked entry, in the same order.
func (c *ResponseCache) MostCommonRequests(n int) []PopularEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]PopularEntry, 0, len(c.summaries))
	for key, summary := range c.summaries {
		entries = append(entries, PopularEntry{Key: key, Summary: summary, Hits: c.hits[key], Lookups: c.lookups[key]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Lookups != entries[j].Lookups {
			return entries[i].Lookups > entries[j].Lookups
		}
		return entries[i].Key < entries[j].Key
	})
	if n >= 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}
