package server

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/pkg/routererr"
	"github.com/routerforge/acctrouter/internal/server/middleware"
	"github.com/routerforge/acctrouter/internal/task"
)

// cache directive values for the x-cache request header (SPEC_FULL.md §6).
const (
	cacheSkip    = "0"
	cacheUse     = "1"
	cacheReplace = "2"
)

// controlHeaders are the router's own request headers, excluded from both
// the cache/bind signature and the set forwarded upstream.
var controlHeaders = map[string]struct{}{
	"x-token":   {},
	"x-login":   {},
	"x-admin":   {},
	"x-account": {},
	"x-group":   {},
	"x-cache":   {},
}

// proxy implements the /api/{rest} endpoint: it builds a Task from the
// incoming request, consults the response cache, schedules the task
// through the Manager, and renders the upstream (or cached) response
// (SPEC_FULL.md §6).
func (h *handlers) proxy(c *gin.Context) {
	start := time.Now()
	stats := h.manager.Stats()
	defer func() {
		stats.RecordProcessTime(time.Since(start))
		stats.RecordResponse(c.Writer.Status(), c.Writer.Size())
	}()

	path := c.Param("rest")
	if path == "" {
		path = "/"
	}
	method := c.Request.Method
	query := c.Request.URL.RawQuery

	xCache := c.GetHeader("x-cache")
	if xCache == "" {
		xCache = cacheSkip
	}
	if xCache != cacheSkip && xCache != cacheUse && xCache != cacheReplace {
		writeError(c, routererr.BadRequest("INVALID_X_CACHE", "x-cache must be 0, 1, or 2"))
		return
	}

	admin := middleware.IsAdmin(c)
	login := middleware.Login(c)
	xAccount := c.GetHeader("x-account")
	if admin && xAccount == "" {
		writeError(c, routererr.BadRequest("ADMIN_REQUIRES_ACCOUNT", "x-admin requires x-account"))
		return
	}

	group := c.GetHeader("x-group")
	if group == "" {
		group = "main"
	}

	headers := forwardedHeaders(c)
	queryValues := singleValueQuery(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, routererr.BadRequest("INVALID_BODY", err.Error()))
		return
	}

	if !admin {
		exceeded, err := h.users.checkAndIncrement(login, path)
		if err != nil {
			writeError(c, routererr.BadRequest("INVALID_LOGIN", err.Error()))
			return
		}
		if exceeded {
			writeError(c, routererr.QuotaExceeded("daily limit exceeded for "+login))
			return
		}
	}

	rc := h.manager.ResponseCache()
	cacheKey := rc.MakeRequestKey(method, path, headers, query, body)

	if xCache == cacheUse {
		if entry, ok, err := rc.Get(c.Request.Context(), cacheKey, login, true); err == nil && ok {
			writeUpstreamResult(c, entry.Status, entry.Headers, entry.Body, "", cacheUse)
			return
		}
	}

	tk := task.New(method, path, headers, query, queryValues, body)
	tk.Account = xAccount
	tk.Group = group
	tk.Login = login
	tk.Admin = admin

	if err := h.manager.AddTask(c.Request.Context(), tk); err != nil {
		writeError(c, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Gateway.TaskTimeout())
	defer cancel()
	if err := tk.Wait(waitCtx); err != nil {
		writeError(c, routererr.Timeout("request exceeded task timeout"))
		return
	}

	if tk.Err != nil && (tk.Result == nil || tk.Result.Status == 0) {
		writeError(c, tk.Err)
		return
	}

	if tk.Err == nil && !admin && xCache != cacheSkip {
		_ = rc.Set(c.Request.Context(), cacheKey, cache.RequestSummary{Method: method, Path: path, Query: query}, cache.Entry{
			Status:  tk.Result.Status,
			Headers: tk.Result.Headers,
			Body:    tk.Result.Body,
		})
	}

	writeUpstreamResult(c, tk.Result.Status, tk.Result.Headers, tk.Result.Body, tk.Account, cacheSkip)
}

func forwardedHeaders(c *gin.Context) map[string]string {
	out := make(map[string]string, len(c.Request.Header))
	for k, v := range c.Request.Header {
		lk := strings.ToLower(k)
		if _, excluded := controlHeaders[lk]; excluded {
			continue
		}
		if len(v) > 0 {
			out[lk] = v[0]
		}
	}
	return out
}

func singleValueQuery(c *gin.Context) map[string]string {
	values := c.Request.URL.Query()
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeUpstreamResult(c *gin.Context, status int, headers map[string][]string, body []byte, account, cacheFlag string) {
	for k, values := range headers {
		for _, v := range values {
			c.Writer.Header().Add(k, v)
		}
	}
	if account != "" {
		c.Writer.Header().Set("x-account", account)
	}
	c.Writer.Header().Set("x-cache", cacheFlag)
	c.Writer.WriteHeader(status)
	_, _ = c.Writer.Write(body)
}
