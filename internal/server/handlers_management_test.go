package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerforge/acctrouter/internal/cache"
)

func doRequest(r http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("x-token", token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPingRequiresToken(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodGet, "/router/ping", "", nil)
	assert.Equal(t, 901, w.Code)
}

func TestPingReturnsPong(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodGet, "/router/ping", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

func TestCreateAndGetAccount(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	payload := []byte(`{"email":"a@example.com","api_token":"tok","cost":3}`)
	w := doRequest(r, http.MethodPost, "/router/accounts", testToken, payload)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodGet, "/router/accounts/a@example.com", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view accountView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "a@example.com", view.Email)
	assert.Equal(t, 3, view.Cost)
}

func TestGetUnknownAccountReturns900(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodGet, "/router/accounts/ghost@example.com", testToken, nil)
	assert.Equal(t, 900, w.Code)
}

func TestDeleteAccountRemovesIt(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, nil)
	require.NoError(t, mgr.AddAccount(context.Background(), newTestAccount("a@example.com", 1)))

	w := doRequest(r, http.MethodDelete, "/router/accounts/a@example.com", testToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(r, http.MethodGet, "/router/accounts/a@example.com", testToken, nil)
	assert.Equal(t, 900, w.Code)
}

func TestCachePurgeReturnsNoContent(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodDelete, "/router/cache", testToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCacheTopRejectsNonInteger(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodGet, "/router/cache/top/notanumber", testToken, nil)
	assert.Equal(t, 900, w.Code)
}

// TestCacheTopAcceptsNoSlashPath confirms the literal "/router/cache/top5"
// form (no separator before the count) resolves, matching the documented
// path-parameter syntax rather than requiring "/cache/top/5".
func TestCacheTopAcceptsNoSlashPath(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, nil)
	rc := mgr.ResponseCache()
	ctx := context.Background()
	key := rc.MakeRequestKey("GET", "/popular", nil, "", nil)
	require.NoError(t, rc.Set(ctx, key, cache.RequestSummary{Method: "GET", Path: "/popular"}, cache.Entry{Status: 200}))
	_, _, _ = rc.Get(ctx, key, "alice", true)

	w := doRequest(r, http.MethodGet, "/router/cache/top5", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []popularEntryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "/popular", out[0].Path)
	assert.Equal(t, 1, out[0].Users)
}

// TestCacheTopNegativeNTakesAbsoluteValue mirrors the original's
// `[:abs(n)]` slicing: a negative n is not an error.
func TestCacheTopNegativeNTakesAbsoluteValue(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, nil)
	rc := mgr.ResponseCache()
	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		key := rc.MakeRequestKey("GET", p, nil, "", nil)
		require.NoError(t, rc.Set(ctx, key, cache.RequestSummary{Method: "GET", Path: p}, cache.Entry{Status: 200}))
		_, _, _ = rc.Get(ctx, key, "u", true)
	}

	w := doRequest(r, http.MethodGet, "/router/cache/top-2", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []popularEntryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 2)
}

// TestCacheTopRanksByUsersThenLookups confirms the (users, lookups) tuple
// ranking: a key with fewer lookups but more distinct users outranks one
// with more lookups from a single user.
func TestCacheTopRanksByUsersThenLookups(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, nil)
	rc := mgr.ResponseCache()
	ctx := context.Background()

	soloKey := rc.MakeRequestKey("GET", "/solo", nil, "", nil)
	require.NoError(t, rc.Set(ctx, soloKey, cache.RequestSummary{Method: "GET", Path: "/solo"}, cache.Entry{Status: 200}))
	for i := 0; i < 5; i++ {
		_, _, _ = rc.Get(ctx, soloKey, "alice", true)
	}

	sharedKey := rc.MakeRequestKey("GET", "/shared", nil, "", nil)
	require.NoError(t, rc.Set(ctx, sharedKey, cache.RequestSummary{Method: "GET", Path: "/shared"}, cache.Entry{Status: 200}))
	_, _, _ = rc.Get(ctx, sharedKey, "bob", true)
	_, _, _ = rc.Get(ctx, sharedKey, "carol", true)

	w := doRequest(r, http.MethodGet, "/router/cache/top2", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []popularEntryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "/shared", out[0].Path)
	assert.Equal(t, 2, out[0].Users)
	assert.Equal(t, "/solo", out[1].Path)
	assert.Equal(t, 1, out[1].Users)
}

func TestStatsServiceReportsAccountCount(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, nil)
	require.NoError(t, mgr.AddAccount(context.Background(), newTestAccount("a@example.com", 1)))

	w := doRequest(r, http.MethodGet, "/router/stats/service", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats serviceStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Accounts)
}

// TestStatsServiceReportsWorkerWaitAndTaskType drives one proxied call
// through a registered account and confirms the dispatch histograms
// Manager._worker_waiting_time/_task_type were grounded on show up.
func TestStatsServiceReportsWorkerWaitAndTaskType(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, []byte("ok"))
	acct := newTestAccount("a@example.com", 0)
	require.NoError(t, mgr.AddAccount(context.Background(), acct))

	w := doRequest(r, http.MethodGet, "/api/wb/search", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/router/stats/service", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats serviceStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))

	var waitSamples, typeSamples int64
	for _, n := range stats.WorkerWait {
		waitSamples += n
	}
	for _, n := range stats.TaskType {
		typeSamples += n
	}
	assert.Equal(t, int64(1), waitSamples)
	assert.Equal(t, int64(1), typeSamples)
}

// TestStatsHTTPReportsProcessTimeAndStatusCode confirms the API-layer
// histograms get_http_stats exposed in the original (process time,
// response status codes, payload sizes) ride alongside the existing
// per-account view rather than replacing it.
func TestStatsHTTPReportsProcessTimeAndStatusCode(t *testing.T) {
	r, mgr := newTestRouter(testConfig(), 200, []byte("ok"))
	require.NoError(t, mgr.AddAccount(context.Background(), newTestAccount("a@example.com", 0)))

	w := doRequest(r, http.MethodGet, "/api/wb/search", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/router/stats/http", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats httpStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))

	var statusSamples, sizeSamples, timeSamples int64
	for _, n := range stats.StatusCode {
		statusSamples += n
	}
	for _, n := range stats.PayloadSize {
		sizeSamples += n
	}
	for _, n := range stats.ProcessTime {
		timeSamples += n
	}
	assert.Equal(t, int64(1), statusSamples)
	assert.Equal(t, int64(1), sizeSamples)
	assert.Equal(t, int64(1), timeSamples)
}

func TestResetUsersClearsRegistry(t *testing.T) {
	r, _ := newTestRouter(testConfig(), 200, nil)
	w := doRequest(r, http.MethodPost, "/router/reset/users", testToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
