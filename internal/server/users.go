package server

import (
	"regexp"
	"sort"
	"sync"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/config"
)

// userRegistry tracks the requesting identities seen on the proxy
// endpoint, lazily creating a *account.User on first sight of a login
// and applying the configured daily-limit and unlimited-login regexes
// (SPEC_FULL.md §6/§7's "per-user quota check" at the API layer).
type userRegistry struct {
	mu        sync.Mutex
	users     map[string]*account.User
	unlimited []*regexp.Regexp
	limits    []account.LimitRule
}

func newUserRegistry(cfg config.AuthConfig) *userRegistry {
	reg := &userRegistry{users: make(map[string]*account.User)}
	for _, pattern := range cfg.UnlimitedUsersRe {
		if re, err := regexp.Compile(pattern); err == nil {
			reg.unlimited = append(reg.unlimited, re)
		}
	}
	rules := make([]account.LimitRule, 0, len(cfg.DailyLimitsPerUser))
	for route, limit := range cfg.DailyLimitsPerUser {
		rules = append(rules, account.LimitRule{Route: route, Limit: limit})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Route < rules[j].Route })
	reg.limits = rules
	return reg
}

// getOrCreate returns login's User, constructing one with the registry's
// default limit rules the first time login is seen.
func (r *userRegistry) getOrCreate(login string) (*account.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[login]; ok {
		return u, nil
	}
	u, err := account.NewUser(login)
	if err != nil {
		return nil, err
	}
	u.Limits.SetRules(r.limits)
	r.users[login] = u
	return u, nil
}

func (r *userRegistry) isUnlimited(login string) bool {
	for _, re := range r.unlimited {
		if re.MatchString(login) {
			return true
		}
	}
	return false
}

// get returns login's User without creating it, used by read-only
// management endpoints.
func (r *userRegistry) get(login string) (*account.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[login]
	return u, ok
}

// all returns every tracked user.
func (r *userRegistry) all() []*account.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*account.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}

// reset clears every tracked user, e.g. on POST /router/reset/users.
func (r *userRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*account.User)
}

// checkAndIncrement enforces login's per-path daily quota for a
// non-admin, non-unlimited request, incrementing usage on success.
func (r *userRegistry) checkAndIncrement(login, path string) (exceeded bool, err error) {
	if login == "" || r.isUnlimited(login) {
		return false, nil
	}
	u, err := r.getOrCreate(login)
	if err != nil {
		return false, err
	}
	if u.Limits.LimitsExceeded(path) {
		return true, nil
	}
	u.Limits.IncUsage(path)
	return false, nil
}
