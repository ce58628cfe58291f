// Package manager owns the account registry and the request scheduler:
// it decides which Worker a Task is pinned to (SPEC_FULL.md §4.7),
// grounded on manager.py's Manager.add_task/add_account.
package manager

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/pkg/routererr"
	"github.com/routerforge/acctrouter/internal/task"
	"github.com/routerforge/acctrouter/internal/worker"
)

// zeroTime stands in for Python's `datetime(1000, 1, 1)` sentinel: any
// real LastReqTimestamp sorts after it, so idle-forever workers are
// tried first during the open race.
var zeroTime time.Time

type bindRule struct {
	re     *regexp.Regexp
	params map[string]struct{}
	rule   config.BindPathRule
}

// Manager is the account registry and scheduler. One per process.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
	workers  map[string]*worker.Worker // keyed by account UID

	responseCache *cache.ResponseCache
	bindCache     *cache.BindCache
	upstream      worker.UpstreamCaller
	donor         config.DonorConfig
	stats         *Stats

	queueMaxSize       int
	queueWarnThreshold int
	workersTimeout     time.Duration

	bindPathAny *regexp.Regexp
	bindRules   []bindRule
}

// New constructs a Manager. upstream is the UpstreamCaller every Worker
// it starts will use to reach the vendor.
func New(cfg config.Config, responseCache *cache.ResponseCache, bindCache *cache.BindCache, upstream worker.UpstreamCaller) *Manager {
	m := &Manager{
		accounts:           make(map[string]*account.Account),
		workers:            make(map[string]*worker.Worker),
		responseCache:      responseCache,
		bindCache:          bindCache,
		upstream:           upstream,
		donor:              cfg.Donor,
		queueMaxSize:       cfg.Gateway.QueueMaxSize,
		queueWarnThreshold: cfg.Gateway.QueueWarnThreshold,
		workersTimeout:     cfg.Gateway.WorkersTimeout(),
		stats:              NewStats(),
	}
	m.compileBindRules(cfg.Donor.BindRequestsPathRe)
	return m
}

func (m *Manager) compileBindRules(rules []config.BindPathRule) {
	if len(rules) == 0 {
		return
	}
	patterns := make([]string, 0, len(rules))
	for _, r := range rules {
		patterns = append(patterns, r.PathRe)
		re, err := regexp.Compile("(?i)" + r.PathRe)
		if err != nil {
			continue
		}
		params := make(map[string]struct{}, len(r.Params))
		for _, p := range r.Params {
			params[p] = struct{}{}
		}
		m.bindRules = append(m.bindRules, bindRule{re: re, params: params, rule: r})
	}
	combined, err := regexp.Compile("(?i)" + strings.Join(patterns, "|"))
	if err == nil {
		m.bindPathAny = combined
	}
}

// ResponseCache returns the shared response cache.
func (m *Manager) ResponseCache() *cache.ResponseCache { return m.responseCache }

// BindCache returns the shared bind-sticky cache.
func (m *Manager) BindCache() *cache.BindCache { return m.bindCache }

// Stats returns the process-wide service/HTTP statistics counters.
func (m *Manager) Stats() *Stats { return m.stats }

// RecordDispatch satisfies worker.DispatchRecorder, forwarding each
// Worker's per-task wait-time and route telemetry to the shared Stats.
func (m *Manager) RecordDispatch(route string, waited time.Duration) {
	m.stats.RecordDispatch(route, waited)
}

// FreeWorkersAvailable reports how many registered Workers are currently
// running (waiting, running, or cooling down).
func (m *Manager) FreeWorkersAvailable() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, w := range m.workers {
		if w.IsRunning() {
			n++
		}
	}
	return n
}

// RemoveBindRequest evicts t's bind-cache entry, if any. It satisfies
// worker.BindRemover so Workers can unstick a bind pinning after a
// banned/freeze-status response (DESIGN NOTE 9.1).
func (m *Manager) RemoveBindRequest(ctx context.Context, t *task.Task) {
	if t.BindKey == "" {
		return
	}
	_ = m.bindCache.Remove(ctx, t.BindKey)
}

// AddAccount registers acct, applying configured defaults for limits and
// routing rules where the account did not set its own, and starts its
// Worker goroutine.
func (m *Manager) AddAccount(ctx context.Context, acct *account.Account) error {
	m.mu.Lock()
	if _, exists := m.accounts[acct.Email]; exists {
		m.mu.Unlock()
		return routererr.BadRequest("ACCOUNT_EXISTS", fmt.Sprintf("account already registered: %s", acct.Email))
	}

	if len(acct.Limits.Rules()) == 0 && len(m.donor.DailyLimitsPerAccount) > 0 {
		rules := make([]account.LimitRule, 0, len(m.donor.DailyLimitsPerAccount))
		for route, limit := range m.donor.DailyLimitsPerAccount {
			rules = append(rules, account.LimitRule{Route: route, Limit: limit})
		}
		sort.Slice(rules, func(i, j int) bool { return rules[i].Route < rules[j].Route })
		acct.Limits.SetRules(rules)
	}
	if len(acct.Routing.Rules()) == 0 && len(m.donor.DefaultRoutingRules) > 0 {
		acct.Routing = account.NewRoutingEngine(m.donor.DefaultRoutingRules)
	}
	if acct.CooldownMode == "" {
		acct.CooldownMode = account.CooldownMode(m.donor.DefaultCooldownMode)
		acct.CooldownParam = account.WindowCooldown(m.donor.DefaultCooldownWindowSize, m.donor.DefaultCooldownPeriod)
	}

	m.accounts[acct.Email] = acct
	q := task.NewQueue(m.queueMaxSize)
	w := worker.New(acct, q, m.upstream, m, m, m.donor)
	m.workers[acct.UID] = w
	m.mu.Unlock()

	w.Start(context.WithoutCancel(ctx))
	return nil
}

// GetAccount returns the registered account for email.
func (m *Manager) GetAccount(email string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[email]
	if !ok {
		return nil, routererr.BadRequest("ACCOUNT_NOT_FOUND", fmt.Sprintf("account not found: %s", email))
	}
	return acct, nil
}

// GetAllAccounts returns every registered account.
func (m *Manager) GetAllAccounts() []*account.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*account.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, acct)
	}
	return out
}

// RemoveAccount unregisters email and stops its Worker.
func (m *Manager) RemoveAccount(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[email]
	if !ok {
		return routererr.BadRequest("ACCOUNT_NOT_FOUND", fmt.Sprintf("account not found: %s", email))
	}
	if w, ok := m.workers[acct.UID]; ok {
		w.Stop()
		delete(m.workers, acct.UID)
	}
	delete(m.accounts, email)
	return nil
}

// RemoveAllAccounts unregisters every account, stopping all Workers.
func (m *Manager) RemoveAllAccounts() {
	m.mu.RLock()
	emails := make([]string, 0, len(m.accounts))
	for email := range m.accounts {
		emails = append(emails, email)
	}
	m.mu.RUnlock()
	for _, email := range emails {
		_ = m.RemoveAccount(email)
	}
}

// ResetAccount restores email's routing rules to its registration
// snapshot and clears accumulated usage, stats, and timestamps.
func (m *Manager) ResetAccount(email string) error {
	acct, err := m.GetAccount(email)
	if err != nil {
		return err
	}
	acct.Reset()
	return nil
}

// ResetAllAccounts resets every registered account.
func (m *Manager) ResetAllAccounts() {
	for _, acct := range m.GetAllAccounts() {
		acct.Reset()
	}
}

// AddTask runs the scheduling decision tree of SPEC_FULL.md §4.7 and, on
// success, enqueues t on the chosen Worker. The caller still awaits
// t.Wait(ctx) themselves.
func (m *Manager) AddTask(ctx context.Context, t *task.Task) error {
	isBindRequest := false

	if !t.Admin && t.Account == "" {
		isBindRequest = m.resolveBindKey(t)
		if isBindRequest && t.BindKey != "" {
			email, ok, err := m.bindCache.Get(ctx, t.BindKey)
			if err != nil {
				return routererr.Upstream(err.Error())
			}
			if ok {
				m.mu.RLock()
				_, known := m.accounts[email]
				m.mu.RUnlock()
				if !known {
					_ = m.bindCache.Remove(ctx, t.BindKey)
					return routererr.BadRequest("ACCOUNT_NOT_FOUND", fmt.Sprintf("account not found: %s", email))
				}
				t.Account = email
				t.Priority = 0
			}
		}
	}

	var w *worker.Worker
	switch {
	case t.Admin:
		if t.Account == "" {
			return routererr.BadRequest("ADMIN_REQUIRES_ACCOUNT", "admin task requires an account")
		}
		var err error
		w, err = m.workerForAccount(t.Account)
		if err != nil {
			return err
		}

	case t.Account != "":
		var err error
		w, err = m.workerForAccount(t.Account)
		if err != nil {
			return err
		}
		if w.Queue().Size() >= m.queueMaxSize {
			return routererr.BadRequest("QUEUE_FULL", fmt.Sprintf("%s queue exceeded maxsize: %d", w.Account().Email, m.queueMaxSize))
		}

	default:
		var err error
		w, err = m.openRace(ctx, t)
		if err != nil {
			return err
		}
	}

	if w.Account().Banned() {
		return routererr.BadRequest("ACCOUNT_BANNED", fmt.Sprintf("%s is banned", w.Account().Email))
	}
	if !((w.IsFrozen() && t.Admin) || w.IsRunning()) {
		return routererr.BadRequest("ACCOUNT_UNAVAILABLE", fmt.Sprintf("%s is %s", w.Account().Email, w.State()))
	}

	if isBindRequest && t.BindKey != "" {
		if err := m.bindCache.Set(ctx, t.BindKey, w.Account().Email); err != nil {
			return routererr.Upstream(err.Error())
		}
	}

	t.Schedule()
	if !w.Queue().TryPut(t.Priority, t) {
		return routererr.BadRequest("QUEUE_FULL", fmt.Sprintf("%s queue exceeded maxsize: %d", w.Account().Email, m.queueMaxSize))
	}
	return nil
}

func (m *Manager) workerForAccount(email string) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[email]
	if !ok {
		return nil, routererr.BadRequest("ACCOUNT_NOT_FOUND", fmt.Sprintf("account not found: %s", email))
	}
	w, ok := m.workers[acct.UID]
	if !ok {
		return nil, routererr.BadRequest("ACCOUNT_NOT_FOUND", fmt.Sprintf("account not found: %s", email))
	}
	return w, nil
}

// resolveBindKey reports whether t.Path matches any configured bind
// pattern and, if so, populates t.BindKey from the first matching
// pattern's matched prefix plus its whitelisted query params, sorted by
// key (SPEC_FULL.md §3/§4.7). A matching pattern with no relevant query
// params present leaves BindKey empty.
func (m *Manager) resolveBindKey(t *task.Task) bool {
	if m.bindPathAny == nil || !m.bindPathAny.MatchString(t.Path) {
		return false
	}
	for _, br := range m.bindRules {
		loc := br.re.FindStringIndex(t.Path)
		if loc == nil || loc[0] != 0 {
			continue
		}
		matched := t.Path[loc[0]:loc[1]]
		var keys []string
		for k := range t.QueryValues {
			if _, ok := br.params[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return true
		}
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+":"+t.QueryValues[k])
		}
		t.BindKey = cache.MakeBindKey(matched, pairs)
		return true
	}
	return true
}

// candidateWorker is one eligible Worker plus its scheduling score.
type candidateWorker struct {
	w         *worker.Worker
	cost      int
	last      time.Time
	bindCount int
}

// openRace builds the eligible-candidate set, sorts it by
// (cost, idle-since, existing-bind-count), and races their free signals
// with an overall workers_timeout deadline (SPEC_FULL.md §4.7).
func (m *Manager) openRace(ctx context.Context, t *task.Task) (*worker.Worker, error) {
	group := t.Group
	if group == "" {
		group = "main"
	}

	m.mu.RLock()
	var candidates []*worker.Worker
	for _, w := range m.workers {
		acct := w.Account()
		if acct.APIMode != account.APIModeDrum {
			continue
		}
		if acct.Group != group {
			continue
		}
		if !w.IsRunning() {
			continue
		}
		if w.Queue().Size() >= m.queueMaxSize {
			continue
		}
		if _, ok := acct.GetRoute(t.Path); !ok {
			continue
		}
		if acct.LimitsExceeded(t.Path) {
			continue
		}
		candidates = append(candidates, w)
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, routererr.BadRequest("NO_WORKERS", fmt.Sprintf("no workers available: %s", t))
	}

	scored := make([]candidateWorker, 0, len(candidates))
	for _, w := range candidates {
		last := zeroTime
		if ts := w.Account().LastReqTimestamp(); ts != nil {
			last = *ts
		}
		count, _ := m.bindCache.CountKeysForValue(ctx, w.Account().Email)
		scored = append(scored, candidateWorker{w: w, cost: w.Account().Cost, last: last, bindCount: count})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		if !a.last.Equal(b.last) {
			return a.last.Before(b.last)
		}
		return a.bindCount < b.bindCount
	})

	// Fast path: pick the cheapest already-free candidate synchronously,
	// so the deterministic cost order is honored whenever more than one
	// candidate is ready at once (asyncio.wait's "first completed" set
	// is unordered when several wake simultaneously; this Go port prefers
	// the cheapest instead of an arbitrary one).
	for _, c := range scored {
		select {
		case <-c.w.Free():
			return c.w, nil
		default:
		}
	}

	raceCtx, cancel := context.WithTimeout(ctx, m.workersTimeout)
	defer cancel()

	winner := make(chan *worker.Worker, len(scored))
	for _, c := range scored {
		go func(w *worker.Worker) {
			select {
			case <-w.Free():
				select {
				case winner <- w:
				default:
				}
			case <-raceCtx.Done():
			}
		}(c.w)
	}

	select {
	case w := <-winner:
		return w, nil
	case <-raceCtx.Done():
		return nil, routererr.BadRequest("NO_WORKERS", fmt.Sprintf("no free worker available: %s", t))
	}
}
