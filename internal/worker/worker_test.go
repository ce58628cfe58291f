package worker

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/task"
)

type stubUpstream struct {
	mu       sync.Mutex
	status   int
	headers  http.Header
	body     []byte
	err      error
	calls    int
	lastPath string
}

func (s *stubUpstream) Call(ctx context.Context, acct *account.Account, method, path string, headers http.Header, query url.Values, body []byte) (int, http.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastPath = path
	return s.status, s.headers, s.body, s.err
}

type stubBindRemover struct {
	mu    sync.Mutex
	calls int
}

func (s *stubBindRemover) RemoveBindRequest(ctx context.Context, t *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func testCfg() config.DonorConfig {
	return config.DonorConfig{
		BannedStatusCodes:    []int{403},
		FreezeStatusCodes:    []int{429},
		RetryAfterHeader:     "retry-after",
		RetryAfterMaxTimeSec: 3600,
		FreezeTimeInitialSec: 5,
		FreezeTimeMaxSec:     60,
		FreezeTimeFactor:     2,
	}
}

func newTestWorker(t *testing.T, up *stubUpstream, binds *stubBindRemover) (*Worker, *account.Account) {
	acct, err := account.NewAccount("acct@example.com", "secret")
	require.NoError(t, err)
	acct.CooldownMode = account.CooldownInterval
	acct.CooldownParam = account.ScalarCooldown(0)
	q := task.NewQueue(25)
	w := New(acct, q, up, binds, nil, testCfg())
	return w, acct
}

func TestWorkerDispatchSuccessPassesPreChecksAndRecordsStats(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	route, freezeTrigger, dispatched := w.dispatch(context.Background(), tk)

	assert.True(t, dispatched)
	assert.Equal(t, "*", route)
	assert.False(t, freezeTrigger)
	assert.True(t, tk.IsReady())
	assert.NoError(t, tk.Err)
	assert.Equal(t, acct.Email, tk.Account)

	stats := acct.ReqStats()
	require.Contains(t, stats, "*")
	assert.EqualValues(t, 1, stats["*"].Sent)
	assert.EqualValues(t, 1, stats["*"].Succeed)
}

func TestWorkerDispatchDeniedRouteSkipsUpstreamCall(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)
	acct.Routing.AddRoutingRule(account.RuleDeny, "/forbidden", -1, nil)

	tk := task.New("GET", "/forbidden", nil, "", nil, nil)
	_, freezeTrigger, dispatched := w.dispatch(context.Background(), tk)

	assert.False(t, dispatched)
	assert.False(t, freezeTrigger)
	assert.True(t, tk.IsReady())
	assert.Error(t, tk.Err)
	assert.Equal(t, 0, up.calls)
}

func TestWorkerDispatchLimitsExceededSkipsUpstreamCall(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)
	acct.Limits.SetRules([]account.LimitRule{{Route: "*", Limit: 0}})

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	_, _, dispatched := w.dispatch(context.Background(), tk)

	assert.False(t, dispatched)
	assert.True(t, tk.IsReady())
	assert.Error(t, tk.Err)
	assert.Equal(t, 0, up.calls)
}

func TestWorkerDispatchAdminTaskBypassesRoutingAndLimits(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)
	acct.Routing.AddRoutingRule(account.RuleDeny, "/wb/search", -1, nil)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	tk.Admin = true
	_, _, dispatched := w.dispatch(context.Background(), tk)

	assert.True(t, dispatched)
	assert.Equal(t, 1, up.calls)
	assert.Empty(t, acct.ReqStats())
}

func TestWorkerDispatchFreezeTriggerOnConnectFailure(t *testing.T) {
	up := &stubUpstream{err: assertError{"boom"}}
	binds := &stubBindRemover{}
	w, _ := newTestWorker(t, up, binds)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	_, freezeTrigger, dispatched := w.dispatch(context.Background(), tk)

	assert.True(t, dispatched)
	assert.True(t, freezeTrigger)
	assert.Error(t, tk.Err)
}

func TestWorkerDispatchBannedStatusAddsDenyRuleAndRemovesBind(t *testing.T) {
	up := &stubUpstream{status: 403}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	w.dispatch(context.Background(), tk)

	assert.Equal(t, 1, binds.calls)
	assert.Contains(t, acct.Routing.Rules()[account.RuleDeny], "*")
}

func TestWorkerDispatchFreezeStatusDeniesRouteWhenNotWildcard(t *testing.T) {
	up := &stubUpstream{status: 429}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)
	acct.Routing.AddRoutingRule(account.RuleAllow, "/wb/search", -1, nil)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	w.dispatch(context.Background(), tk)

	assert.Equal(t, 1, binds.calls)
	assert.Contains(t, acct.Routing.Rules()[account.RuleDeny], "/wb/search")
}

func TestWorkerDispatchFreezeStatusOnWildcardDoesNotAddDenyRule(t *testing.T) {
	up := &stubUpstream{status: 429}
	binds := &stubBindRemover{}
	w, acct := newTestWorker(t, up, binds)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	_, freezeTrigger, _ := w.dispatch(context.Background(), tk)

	assert.True(t, freezeTrigger)
	assert.Equal(t, 0, binds.calls)
	assert.Empty(t, acct.Routing.Rules()[account.RuleDeny])
}

func TestWorkerFreeSignalRaiseAndClear(t *testing.T) {
	up := &stubUpstream{}
	binds := &stubBindRemover{}
	w, _ := newTestWorker(t, up, binds)

	w.raiseFree()
	select {
	case <-w.Free():
	default:
		t.Fatal("expected free signal to be raised")
	}

	w.raiseFree()
	w.clearFree()
	select {
	case <-w.Free():
		t.Fatal("expected free signal to be cleared")
	default:
	}
}

func TestWorkerStartProcessesQueuedTaskThenStops(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, _ := newTestWorker(t, up, binds)

	tk := task.New("GET", "/wb/search", nil, "", nil, nil)
	require.True(t, w.Queue().TryPut(tk.Priority, tk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, tk.Wait(waitCtx))

	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never terminated")
	}
}

func TestWorkerStateTransitionsFromIdleToTerminated(t *testing.T) {
	up := &stubUpstream{status: 200}
	binds := &stubBindRemover{}
	w, _ := newTestWorker(t, up, binds)

	assert.Equal(t, StateIdle, w.State())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never terminated")
	}
	assert.Equal(t, StateTerminated, w.State())
}

func TestWorkerIsRunningAndIsAlive(t *testing.T) {
	up := &stubUpstream{}
	binds := &stubBindRemover{}
	w, _ := newTestWorker(t, up, binds)

	w.setState(StateWaiting)
	assert.True(t, w.IsRunning())
	assert.True(t, w.IsAlive())

	w.setState(StateFrozen)
	assert.False(t, w.IsRunning())
	assert.True(t, w.IsAlive())
	assert.True(t, w.IsFrozen())

	w.setState(StateTerminated)
	assert.False(t, w.IsRunning())
	assert.False(t, w.IsAlive())
}

func TestLeadingNonDigitPrefix(t *testing.T) {
	assert.Equal(t, "/wb/seo/", leadingNonDigitPrefix("/wb/seo/123"))
	assert.Equal(t, "/wb/seo", leadingNonDigitPrefix("/wb/seo"))
	assert.Equal(t, "", leadingNonDigitPrefix("123"))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
