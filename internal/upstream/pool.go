package upstream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"

	"github.com/routerforge/acctrouter/internal/config"
)

// poolEntry is one cached *req.Client plus the LRU/idle-eviction
// bookkeeping the teacher's http_upstream.go tracks per transport.
type poolEntry struct {
	client   *req.Client
	lastUsed int64 // UnixNano, atomic
	inFlight int64 // atomic; entries with inFlight > 0 are never evicted
}

// TransportPool caches *req.Client instances keyed by the configured
// isolation strategy (proxy / account / account_proxy), bounded by
// MaxPoolEntries and evicted by idle TTL then LRU, exactly mirroring the
// teacher's httpUpstreamService connection-pool policy but built on
// imroc/req/v3 instead of a raw *http.Transport.
type TransportPool struct {
	isolation    string
	maxEntries   int
	idleTTL      time.Duration
	baseTimeout  time.Duration

	mu      sync.RWMutex
	entries map[string]*poolEntry
}

// NewTransportPool constructs a pool from DonorConfig's pooling knobs.
func NewTransportPool(cfg config.DonorConfig) *TransportPool {
	isolation := cfg.ConnectionPoolIsolation
	if isolation == "" {
		isolation = config.PoolIsolationAccountProxy
	}
	return &TransportPool{
		isolation:   isolation,
		maxEntries:  cfg.MaxPoolEntries,
		idleTTL:     cfg.IdlePoolEntryTTL(),
		baseTimeout: cfg.NetworkTimeout(),
		entries:     make(map[string]*poolEntry),
	}
}

// poolKey builds the cache key for the given isolation strategy.
func poolKey(isolation, proxyKey, accountEmail string) string {
	switch isolation {
	case config.PoolIsolationAccount:
		return "account:" + accountEmail
	case config.PoolIsolationAccountProxy:
		return "account:" + accountEmail + "|proxy:" + proxyKey
	default:
		return "proxy:" + proxyKey
	}
}

// Acquire returns the pooled client for (proxyURL, accountEmail),
// creating it if absent, and marks one in-flight request against it.
// The caller must call Release when the request completes.
func (p *TransportPool) Acquire(proxyURL, accountEmail string) *req.Client {
	proxyKey := proxyURL
	if proxyKey == "" {
		proxyKey = "direct"
	}
	key := poolKey(p.isolation, proxyKey, accountEmail)
	now := time.Now().UnixNano()

	p.mu.RLock()
	if e, ok := p.entries[key]; ok {
		atomic.StoreInt64(&e.lastUsed, now)
		atomic.AddInt64(&e.inFlight, 1)
		p.mu.RUnlock()
		return e.client
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		atomic.StoreInt64(&e.lastUsed, now)
		atomic.AddInt64(&e.inFlight, 1)
		return e.client
	}

	client := req.C().SetTimeout(p.baseTimeout)
	if proxyURL != "" {
		client.SetProxyURL(proxyURL)
	}
	entry := &poolEntry{client: client, lastUsed: now, inFlight: 1}
	p.entries[key] = entry

	p.evictLocked(time.Now())
	return client
}

// Release marks one in-flight request against (proxyURL, accountEmail)
// as complete.
func (p *TransportPool) Release(proxyURL, accountEmail string) {
	proxyKey := proxyURL
	if proxyKey == "" {
		proxyKey = "direct"
	}
	key := poolKey(p.isolation, proxyKey, accountEmail)

	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return
	}
	atomic.AddInt64(&e.inFlight, -1)
	atomic.StoreInt64(&e.lastUsed, time.Now().UnixNano())
}

// Size reports the current number of pooled clients.
func (p *TransportPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// evictLocked removes idle-expired entries, then the oldest idle entries
// until under maxEntries. Caller must hold p.mu for writing.
func (p *TransportPool) evictLocked(now time.Time) {
	if p.idleTTL > 0 {
		cutoff := now.Add(-p.idleTTL).UnixNano()
		for key, e := range p.entries {
			if atomic.LoadInt64(&e.inFlight) != 0 {
				continue
			}
			if atomic.LoadInt64(&e.lastUsed) <= cutoff {
				delete(p.entries, key)
			}
		}
	}
	if p.maxEntries <= 0 {
		return
	}
	for len(p.entries) > p.maxEntries {
		var oldestKey string
		var oldestTime int64
		found := false
		for key, e := range p.entries {
			if atomic.LoadInt64(&e.inFlight) != 0 {
				continue
			}
			lastUsed := atomic.LoadInt64(&e.lastUsed)
			if !found || lastUsed < oldestTime {
				oldestKey, oldestTime, found = key, lastUsed, true
			}
		}
		if !found {
			return
		}
		delete(p.entries, oldestKey)
	}
}
