package upstream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// headersToStrip are never forwarded to the upstream vendor or echoed
// back to the caller; the pool manages framing itself.
var headersToStrip = map[string]struct{}{
	"transfer-encoding": {},
	"connection":        {},
}

// Client is the one-shot upstream HTTP client described in SPEC_FULL.md
// §4.4: pooled-transport, retry-on-connect-error, fully-buffered response.
type Client struct {
	pool *TransportPool
}

// NewClient builds a Client backed by the given transport pool.
func NewClient(pool *TransportPool) *Client {
	return &Client{pool: pool}
}

// Do issues one upstream request through the pooled client for
// (proxyURL, accountEmail), retrying up to retries times on ConnectError.
// It returns either (status, headers, body) or a *ConnectError/*OtherError.
func (c *Client) Do(
	ctx context.Context,
	proxyURL, accountEmail string,
	method, rawURL string,
	headers http.Header,
	query url.Values,
	body []byte,
	timeout time.Duration,
	retries int,
	followRedirects bool,
) (int, http.Header, []byte, error) {
	client := c.pool.Acquire(proxyURL, accountEmail)
	defer c.pool.Release(proxyURL, accountEmail)

	attempts := retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		status, respHeaders, respBody, err := c.doOnce(ctx, client, method, rawURL, headers, query, body, timeout, followRedirects)
		if err == nil {
			return status, respHeaders, respBody, nil
		}
		lastErr = err
		if _, ok := err.(*ConnectError); !ok {
			return 0, nil, nil, err
		}
		if ctx.Err() != nil {
			return 0, nil, nil, &ConnectError{cause: ctx.Err()}
		}
	}
	return 0, nil, nil, lastErr
}

func (c *Client) doOnce(
	ctx context.Context,
	client *req.Client,
	method, rawURL string,
	headers http.Header,
	query url.Values,
	body []byte,
	timeout time.Duration,
	followRedirects bool,
) (int, http.Header, []byte, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := client.R().SetContext(reqCtx)
	if !followRedirects {
		r.SetRetryCount(0)
	}
	for k, vals := range headers {
		lk := strings.ToLower(k)
		if _, skip := headersToStrip[lk]; skip {
			continue
		}
		for _, v := range vals {
			r.SetHeader(k, v)
		}
	}
	if len(body) > 0 {
		r.SetBody(body)
	}

	target := rawURL
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return 0, nil, nil, &OtherError{cause: err}
		}
		q := u.Query()
		for k, vals := range query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	resp, err := r.Send(strings.ToUpper(method), target)
	if err != nil {
		if isConnectError(err) {
			return 0, nil, nil, &ConnectError{cause: err}
		}
		return 0, nil, nil, &OtherError{cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &ConnectError{cause: err}
	}

	respHeaders := resp.Header.Clone()
	for h := range headersToStrip {
		respHeaders.Del(h)
	}
	return resp.StatusCode, respHeaders, respBody, nil
}

// isConnectError distinguishes a dial/connect/timeout failure (eligible
// for retry) from a malformed-request failure the transport itself
// rejected before attempting I/O.
func isConnectError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused", "no such host", "i/o timeout",
		"context deadline exceeded", "EOF", "connection reset",
		"broken pipe", "TLS handshake timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
