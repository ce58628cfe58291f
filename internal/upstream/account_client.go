package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/config"
)

// AccountClient wraps Client with the single-vendor framing described in
// SPEC_FULL.md §4.4: it attaches the account's bearer token under the
// configured header name, fills default headers, passes through only a
// whitelisted set of caller headers, and tracks the account's proxy
// health around the call.
type AccountClient struct {
	client             *Client
	baseURL            string
	authHeaderName     string
	defaultHeaders     map[string]string
	passthroughHeaders map[string]struct{}
	timeout            time.Duration
	retries            int
}

// NewAccountClient builds an AccountClient from donor configuration.
func NewAccountClient(client *Client, cfg config.DonorConfig) *AccountClient {
	passthrough := make(map[string]struct{}, len(cfg.PassthroughHeaders))
	for _, h := range cfg.PassthroughHeaders {
		passthrough[strings.ToLower(h)] = struct{}{}
	}
	return &AccountClient{
		client:             client,
		baseURL:            strings.TrimRight(cfg.UpstreamBaseURL, "/"),
		authHeaderName:     cfg.AuthHeaderName,
		defaultHeaders:     cfg.DefaultHeaders,
		passthroughHeaders: passthrough,
		timeout:            cfg.NetworkTimeout(),
		retries:            cfg.NetworkRetries,
	}
}

// Call issues path (e.g. "/wb/seo/search") against the configured
// upstream host on behalf of acct, returning (status, headers, body) or
// a *ConnectError/*OtherError. It updates acct.Proxy.Status as it goes:
// Unknown before the call, Alive on any response, Dead on a connect
// failure.
func (c *AccountClient) Call(
	ctx context.Context,
	acct *account.Account,
	method, path string,
	callerHeaders http.Header,
	query url.Values,
	body []byte,
) (int, http.Header, []byte, error) {
	proxyURL := ""
	if acct.Proxy != nil {
		proxyURL = acct.Proxy.URL()
		acct.Proxy.Status = account.ProxyUnknown
	}

	headers := make(http.Header)
	for k, v := range c.defaultHeaders {
		headers.Set(k, v)
	}
	for k, vals := range callerHeaders {
		if _, ok := c.passthroughHeaders[strings.ToLower(k)]; !ok {
			continue
		}
		for _, v := range vals {
			headers.Add(k, v)
		}
	}
	if c.authHeaderName != "" {
		headers.Set(c.authHeaderName, acct.APIToken)
	}

	status, respHeaders, respBody, err := c.client.Do(
		ctx, proxyURL, acct.Email, method, c.baseURL+path,
		headers, query, body, c.timeout, c.retries, false,
	)

	if acct.Proxy != nil {
		if err != nil {
			acct.Proxy.Status = account.ProxyDead
		} else {
			acct.Proxy.Status = account.ProxyAlive
		}
	}
	return status, respHeaders, respBody, err
}
