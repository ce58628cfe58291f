package upstream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/config"
)

func testAccountClientConfig(baseURL string) config.DonorConfig {
	cfg := testDonorConfig()
	cfg.UpstreamBaseURL = baseURL
	cfg.AuthHeaderName = "X-Upstream-Token"
	cfg.DefaultHeaders = map[string]string{"user-agent": "acctrouter/1.0"}
	cfg.PassthroughHeaders = []string{"content-type"}
	return cfg
}

func TestAccountClientCallAttachesTokenAndDefaultHeaders(t *testing.T) {
	var seenAuth, seenUA, seenExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("X-Upstream-Token")
		seenUA = r.Header.Get("User-Agent")
		seenExtra = r.Header.Get("X-Not-Allowed")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testAccountClientConfig(srv.URL)
	ac := NewAccountClient(NewClient(NewTransportPool(cfg)), cfg)

	acct, err := account.NewAccount("acct@example.com", "secret-token")
	require.NoError(t, err)

	callerHeaders := http.Header{"X-Not-Allowed": []string{"nope"}}
	status, _, _, err := ac.Call(context.Background(), acct, "GET", "/wb/search", callerHeaders, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "secret-token", seenAuth)
	assert.Equal(t, "acctrouter/1.0", seenUA)
	assert.Empty(t, seenExtra)
}

func TestAccountClientPassesThroughWhitelistedHeaders(t *testing.T) {
	var seenContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testAccountClientConfig(srv.URL)
	ac := NewAccountClient(NewClient(NewTransportPool(cfg)), cfg)
	acct, err := account.NewAccount("acct@example.com", "secret-token")
	require.NoError(t, err)

	callerHeaders := http.Header{"Content-Type": []string{"application/json"}}
	_, _, _, err = ac.Call(context.Background(), acct, "POST", "/wb/search", callerHeaders, nil, []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, "application/json", seenContentType)
}

func TestAccountClientUpdatesProxyStatusOnSuccessAndFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testAccountClientConfig(srv.URL)
	ac := NewAccountClient(NewClient(NewTransportPool(cfg)), cfg)

	acct, err := account.NewAccount("acct@example.com", "secret-token")
	require.NoError(t, err)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	acct.Proxy, err = account.NewProxy(account.ProxyHTTP, host, port, "", "")
	require.NoError(t, err)

	_, _, _, err = ac.Call(context.Background(), acct, "GET", "/ok", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, account.ProxyAlive, acct.Proxy.Status)

	// The account's proxy is the test server itself; closing it makes the
	// next call fail to connect.
	srv.Close()
	badCfg := testAccountClientConfig("http://127.0.0.1:1")
	badCfg.NetworkTimeoutSec = 0
	badAC := NewAccountClient(NewClient(NewTransportPool(badCfg)), badCfg)
	acct.Proxy.Status = account.ProxyUnknown
	_, _, _, err = badAC.Call(context.Background(), acct, "GET", "/down", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, account.ProxyDead, acct.Proxy.Status)
}
