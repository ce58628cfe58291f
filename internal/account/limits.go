package account

import "sync"

// LimitRule is one route-regex to daily-quota entry, held in insertion
// order because the first matching rule wins (LimitsExceeded/IncUsage
// both stop at the first regex match, so order is semantically load
// bearing, unlike a plain Go map).
type LimitRule struct {
	Route string
	Limit int64
}

// Limiter tracks a set of ordered route-quota rules and a per-route usage
// counter, shared by Account and User (the original's LimitsMixin).
type Limiter struct {
	mu    sync.Mutex
	rules []LimitRule
	usage map[string]int64
}

// NewLimiter constructs a Limiter with the given rules, preserving order.
func NewLimiter(rules []LimitRule) *Limiter {
	return &Limiter{
		rules: append([]LimitRule(nil), rules...),
		usage: make(map[string]int64),
	}
}

// SetRules replaces the rule list, preserving the given order.
func (l *Limiter) SetRules(rules []LimitRule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append([]LimitRule(nil), rules...)
}

// Rules returns a copy of the current ordered rule list.
func (l *Limiter) Rules() []LimitRule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LimitRule(nil), l.rules...)
}

// UsageTotal sums usage across every route bucket.
func (l *Limiter) UsageTotal() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, v := range l.usage {
		total += v
	}
	return total
}

// Usage returns a copy of the per-route usage counters.
func (l *Limiter) Usage() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.usage))
	for k, v := range l.usage {
		out[k] = v
	}
	return out
}

// selectedRoute returns the first rule route matching path, or "*" if
// there are no rules at all, replicating the original's for/else idiom.
func (l *Limiter) selectedRoute(path string) (route string, hasRules bool) {
	if len(l.rules) == 0 {
		return "*", false
	}
	for _, r := range l.rules {
		if matchRoute(r.Route, path) {
			return r.Route, true
		}
	}
	return "*", true
}

// LimitsExceeded reports whether path's selected bucket has reached or
// passed its configured limit. With no rules configured, it is never
// exceeded.
func (l *Limiter) LimitsExceeded(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rules) == 0 {
		return false
	}
	for _, r := range l.rules {
		if matchRoute(r.Route, path) {
			return l.usage[r.Route] >= r.Limit
		}
	}
	return false
}

// IncUsage increments the usage bucket selected for path by one.
func (l *Limiter) IncUsage(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	route, _ := l.selectedRoute(path)
	l.usage[route]++
}

// ResetUsage clears all recorded usage without touching the rule list.
func (l *Limiter) ResetUsage() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = make(map[string]int64)
}
