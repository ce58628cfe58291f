// Package worker runs one cooperative per-account loop that drains a
// priority queue of tasks, enforces routing/limit/cooldown/freeze
// policy, and dispatches each task to the upstream vendor (SPEC_FULL.md
// §4.5), grounded on worker.py's AsyncWorker.
package worker

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/pkg/routererr"
	"github.com/routerforge/acctrouter/internal/task"
)

// State is one point in the Worker's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateWaiting    State = "waiting"
	StateRunning    State = "running"
	StateCooldown   State = "cooldown"
	StateFrozen     State = "frozen"
	StateTerminated State = "terminated"
)

// UpstreamCaller is the narrow interface the Worker needs from the
// vendor HTTP client; *upstream.AccountClient satisfies it.
type UpstreamCaller interface {
	Call(ctx context.Context, acct *account.Account, method, path string, headers http.Header, query url.Values, body []byte) (int, http.Header, []byte, error)
}

// BindRemover is the single method the Worker needs from the Manager,
// kept as a narrow interface so this package never imports the manager
// package (DESIGN NOTE 9.1).
type BindRemover interface {
	RemoveBindRequest(ctx context.Context, t *task.Task)
}

// DispatchRecorder receives per-task scheduling telemetry so the Manager
// can aggregate its worker-wait-time and task-type histograms without
// this package importing the manager package.
type DispatchRecorder interface {
	RecordDispatch(route string, waited time.Duration)
}

// Worker owns exactly one Account's Queue and runs its processing loop
// on a single goroutine.
type Worker struct {
	account  *account.Account
	queue    *task.Queue
	upstream UpstreamCaller
	binds    BindRemover
	stats    DispatchRecorder
	cfg      config.DonorConfig
	pacer    *pacer
	freeze   *freezeController

	mu    sync.RWMutex
	state State

	free   chan struct{}
	permit chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Worker for acct. stats may be nil, in which case
// dispatch telemetry is dropped. Call Start to begin processing.
func New(acct *account.Account, queue *task.Queue, upstream UpstreamCaller, binds BindRemover, stats DispatchRecorder, cfg config.DonorConfig) *Worker {
	w := &Worker{
		account:  acct,
		queue:    queue,
		upstream: upstream,
		binds:    binds,
		stats:    stats,
		cfg:      cfg,
		pacer:    newPacer(acct.CooldownMode, acct.CooldownParam),
		freeze:   newFreezeController(cfg.FreezeTimeInitial(), cfg.FreezeTimeMax(), cfg.FreezeTimeFactor),
		state:    StateIdle,
		free:     make(chan struct{}, 1),
		permit:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	return w
}

// Account returns the account this Worker serves.
func (w *Worker) Account() *account.Account { return w.account }

// Queue returns this Worker's inbox.
func (w *Worker) Queue() *task.Queue { return w.queue }

// State reports the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// IsRunning reports whether the Worker is actively cycling (waiting,
// running, or pacing a cooldown).
func (w *Worker) IsRunning() bool {
	switch w.State() {
	case StateWaiting, StateRunning, StateCooldown:
		return true
	default:
		return false
	}
}

// IsAlive additionally counts FROZEN as alive (queued tasks will still
// eventually run once the freeze lifts).
func (w *Worker) IsAlive() bool {
	return w.IsRunning() || w.State() == StateFrozen
}

// IsFrozen reports whether the Worker is currently sleeping off a freeze.
func (w *Worker) IsFrozen() bool { return w.State() == StateFrozen }

// Free returns the channel the Manager selects on during the open race:
// a value is available whenever this Worker's queue is empty and it is
// ready to accept a new task.
func (w *Worker) Free() <-chan struct{} { return w.free }

func (w *Worker) raiseFree() {
	select {
	case w.free <- struct{}{}:
	default:
	}
}

func (w *Worker) clearFree() {
	select {
	case <-w.free:
	default:
	}
}

// Start launches the processing loop on its own goroutine. ctx governs
// the Worker's lifetime; cancelling it (directly or via Stop) ends the
// loop after the in-flight task, if any, completes.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go func() {
		<-runCtx.Done()
		w.queue.Close()
	}()
	go w.run(runCtx)
}

// Stop cancels the Worker's context, ending its loop.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.queue.Close()
}

// Done is closed once the run loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		if w.account.Banned() || ctx.Err() != nil {
			w.setState(StateTerminated)
			return
		}

		w.setState(StateWaiting)
		if w.queue.Empty() {
			w.raiseFree()
		}

		t, ok := w.queue.Get()
		if !ok {
			w.setState(StateTerminated)
			return
		}
		w.clearFree()

		select {
		case w.permit <- struct{}{}:
		case <-ctx.Done():
			w.setState(StateTerminated)
			return
		}

		route, freezeTrigger, dispatched := w.dispatch(ctx, t)
		<-w.permit

		if dispatched {
			w.pace(route)
			w.applyFreeze(ctx, freezeTrigger)
		}
	}
}

// dispatch runs the routing/limits pre-checks, the upstream call, and
// the non-admin post-processing for one task. It returns the resolved
// route, whether the call is counted as a freeze-triggering failure (no
// status at all, or a freeze-status-code response), and whether the
// upstream call happened at all (false when a routing/limits pre-check
// failed the task outright, in which case no cooldown or freeze cost is
// paid).
func (w *Worker) dispatch(ctx context.Context, t *task.Task) (route string, freezeTrigger, dispatched bool) {
	route = "*"
	if !t.Admin {
		r, ok := w.account.GetRoute(t.Path)
		if !ok {
			t.Err = routererr.Routing("forbidden route: " + t.Path)
			t.Ready()
			return route, false, false
		}
		route = r
		if w.account.LimitsExceeded(t.Path) {
			t.Err = routererr.Limits("exceeded limits: " + t.Path)
			t.Ready()
			return route, false, false
		}
	}

	if w.stats != nil {
		w.stats.RecordDispatch(route, t.Waited())
	}

	w.setState(StateRunning)
	t.Account = w.account.Email
	t.Work()

	headers := toHeader(t.Headers)
	query := toValues(t.QueryValues)
	status, respHeaders, body, err := w.upstream.Call(ctx, w.account, t.Method, t.Path, headers, query, t.Body)

	switch {
	case err != nil:
		t.Err = routererr.Upstream(err.Error())
	case status/100 != 2:
		t.Result = &task.Result{Status: status, Headers: respHeaders, Body: body}
		t.Err = routererr.Upstream("status code: " + strconv.Itoa(status))
	default:
		t.Result = &task.Result{Status: status, Headers: respHeaders, Body: body}
	}
	t.Ready()

	now := time.Now()
	w.pacer.recordRequest(now)

	if !t.Admin {
		w.account.RecordCall(route, status, t.Err != nil, now)
		w.postProcess(ctx, t, route, status)
	}
	// Freeze back-off is evaluated for every task, admin or not: it
	// depends only on whether a status was observed at all and whether
	// it falls in the freeze set, not on routing.
	freezeTrigger = status == 0 || containsInt(w.cfg.FreezeStatusCodes, status)
	return route, freezeTrigger, true
}

// postProcess applies the non-admin banned/freeze/limits deny-rule logic
// after one call: banned codes always deny the specific route; freeze
// codes deny it with a retry-after-derived expiry, but only away from
// the wildcard route; otherwise a now-exceeded limit denies the route.
func (w *Worker) postProcess(ctx context.Context, t *task.Task, route string, status int) {
	switch {
	case status != 0 && containsInt(w.cfg.BannedStatusCodes, status):
		w.binds.RemoveBindRequest(ctx, t)
		w.account.Routing.AddRoutingRule(account.RuleDeny, route, -1, nil)

	case route != "*" && status != 0 && containsInt(w.cfg.FreezeStatusCodes, status):
		w.binds.RemoveBindRequest(ctx, t)
		endpoint, expire := w.freezeExpiry(t, route)
		w.account.Routing.AddRoutingRule(account.RuleDeny, endpoint, -1, expire)

	case w.account.LimitsExceeded(t.Path):
		w.account.Routing.AddRoutingRule(account.RuleDeny, route, -1, nil)
	}
}

// freezeExpiry derives the deny-rule endpoint and expiry time from the
// Retry-After response header, falling back to the longest leading
// non-digit prefix of the task path when the header is absent or
// unparseable (DESIGN NOTE 9.8).
func (w *Worker) freezeExpiry(t *task.Task, route string) (string, *time.Time) {
	endpoint := route
	var retryAfterSec float64
	haveRetryAfter := false

	if w.cfg.RetryAfterHeader != "" && t.Result != nil {
		if vals := t.Result.Headers[http.CanonicalHeaderKey(w.cfg.RetryAfterHeader)]; len(vals) > 0 {
			if v, err := strconv.ParseFloat(vals[0], 64); err == nil {
				retryAfterSec = v
				haveRetryAfter = true
			}
		}
	}
	if !haveRetryAfter {
		prefix := leadingNonDigitPrefix(t.Path)
		if len(prefix) < len(route) {
			endpoint = route
		} else {
			endpoint = prefix
		}
	}

	maxTime := w.cfg.RetryAfterMaxTimeSec
	if maxTime <= 0 {
		if !haveRetryAfter {
			return endpoint, nil
		}
		expire := time.Now().Add(time.Duration(retryAfterSec * float64(time.Second)))
		return endpoint, &expire
	}
	if !haveRetryAfter || retryAfterSec > maxTime {
		retryAfterSec = maxTime
	}
	expire := time.Now().Add(time.Duration(retryAfterSec * float64(time.Second)))
	return endpoint, &expire
}

// pace sleeps off the account's configured cooldown between requests.
func (w *Worker) pace(route string) {
	w.setState(StateCooldown)
	d := w.pacer.cooldown(time.Now())
	if d > 0 {
		time.Sleep(d)
	} else {
		time.Sleep(time.Millisecond)
	}
}

// applyFreeze escalates or resets the exponential back-off and, while
// frozen, sleeps in short slices until either the queue gains work or
// the freeze expires.
func (w *Worker) applyFreeze(ctx context.Context, freezeTrigger bool) {
	w.freeze.observe(freezeTrigger)
	if w.freeze.frozenFor() <= 0 {
		return
	}
	w.setState(StateFrozen)
	const slice = 100 * time.Millisecond
	for w.queue.Empty() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(slice):
		}
		w.freeze.tick(slice)
		if w.freeze.frozenFor() <= 0 {
			return
		}
	}
}

func toHeader(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

func toValues(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// leadingNonDigitPrefix returns the longest prefix of s containing no
// ASCII digit, e.g. "/wb/seo/123" -> "/wb/seo/".
func leadingNonDigitPrefix(s string) string {
	idx := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if idx < 0 {
		return s
	}
	return s[:idx]
}
