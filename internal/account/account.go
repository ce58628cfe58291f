// Package account defines the Account, Proxy, and User domain types:
// static identity plus the mutable routing, quota, and statistics state
// the Worker and Manager packages operate on (SPEC_FULL.md §3/§4.6).
package account

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// APIMode selects how a Worker's upstream traffic is shaped.
type APIMode string

const (
	APIModeDirect APIMode = "direct"
	APIModeDrum   APIMode = "drum"
)

// RouteStats accumulates per-route call outcomes for observability.
type RouteStats struct {
	Sent    int64
	Succeed int64
	Failed  int64
}

// Account is one upstream identity the router multiplexes requests
// across, keyed by Email. Routing rules, usage, and statistics are
// mutated exclusively by the account's Worker; the Manager only reads
// a narrow slice of this state (Cost, LastReqTimestamp, GetRoute,
// LimitsExceeded) while scheduling, under RLock.
type Account struct {
	UID      string
	Email    string
	Group    string
	APIToken string

	APIMode       APIMode
	CooldownMode  CooldownMode
	CooldownParam CooldownParam

	Cost int

	Proxy *Proxy

	Routing *RoutingEngine
	Limits  *Limiter

	CreatedAt    *time.Time
	ExpireAt     *time.Time
	RegisteredAt time.Time

	mu              sync.RWMutex
	reqStats        map[string]*RouteStats
	lastStatusCodes map[string]int
	lastReqTime     *time.Time
}

// NewAccount validates and constructs an Account in group "main" with
// api_mode DRUM by default.
func NewAccount(email, apiToken string) (*Account, error) {
	if email == "" {
		return nil, fmt.Errorf("account: email must not be empty")
	}
	if apiToken == "" {
		return nil, fmt.Errorf("account: api token must not be empty")
	}
	return &Account{
		UID:             uuid.NewString(),
		Email:           email,
		Group:           "main",
		APIToken:        apiToken,
		APIMode:         APIModeDrum,
		RegisteredAt:    time.Now(),
		Routing:         NewRoutingEngine(nil),
		Limits:          NewLimiter(nil),
		reqStats:        make(map[string]*RouteStats),
		lastStatusCodes: make(map[string]int),
	}, nil
}

// Lifetime returns the seconds remaining until ExpireAt, or -1 if unset.
func (a *Account) Lifetime() int64 {
	if a.ExpireAt == nil {
		return -1
	}
	remaining := int64(time.Until(*a.ExpireAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetRoute delegates to the routing engine.
func (a *Account) GetRoute(path string) (string, bool) {
	return a.Routing.GetRoute(path)
}

// LimitsExceeded delegates to the limiter.
func (a *Account) LimitsExceeded(path string) bool {
	return a.Limits.LimitsExceeded(path)
}

// IncUsage delegates to the limiter.
func (a *Account) IncUsage(path string) {
	a.Limits.IncUsage(path)
}

// Banned reports whether the account is globally denied.
func (a *Account) Banned() bool {
	return a.Routing.Banned()
}

// SetBanned sets the global-deny flag.
func (a *Account) SetBanned(banned bool) {
	a.Routing.SetBanned(banned)
}

// RecordCall updates per-route stats, last status code, and the
// last-request timestamp after an upstream call completes on route.
func (a *Account) RecordCall(route string, statusCode int, failed bool, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.reqStats[route]
	if !ok {
		stats = &RouteStats{}
		a.reqStats[route] = stats
	}
	stats.Sent++
	if failed {
		stats.Failed++
	} else {
		stats.Succeed++
	}
	a.lastStatusCodes[route] = statusCode
	a.lastReqTime = &at
}

// LastReqTimestamp returns the last recorded call time, or nil if the
// account has never been used.
func (a *Account) LastReqTimestamp() *time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastReqTime
}

// ReqStats returns a copy of the per-route statistics.
func (a *Account) ReqStats() map[string]RouteStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]RouteStats, len(a.reqStats))
	for k, v := range a.reqStats {
		out[k] = *v
	}
	return out
}

// LastStatusCodes returns a copy of the per-route last-seen status codes.
func (a *Account) LastStatusCodes() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.lastStatusCodes))
	for k, v := range a.lastStatusCodes {
		out[k] = v
	}
	return out
}

// Reset restores routing rules to their registration snapshot and clears
// accumulated usage, stats, last status codes, and last-request time.
func (a *Account) Reset() {
	a.Routing.Reset()
	a.Limits.ResetUsage()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqStats = make(map[string]*RouteStats)
	a.lastStatusCodes = make(map[string]int)
	a.lastReqTime = nil
}
