package server

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/pkg/routererr"
)

func (h *handlers) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// serviceStats is the GET /router/stats/service payload: coarse
// scheduler health plus the worker-wait-time and task-type histograms
// the original tracked as Manager._worker_waiting_time/_task_type.
type serviceStats struct {
	Accounts    int              `json:"accounts"`
	WorkersFree int              `json:"workers_free"`
	WorkerWait  map[string]int64 `json:"worker_waiting_time"`
	TaskType    map[string]int64 `json:"task_type"`
}

func (h *handlers) statsService(c *gin.Context) {
	snap := h.manager.Stats().Snapshot()
	c.JSON(http.StatusOK, serviceStats{
		Accounts:    len(h.manager.GetAllAccounts()),
		WorkersFree: h.manager.FreeWorkersAvailable(),
		WorkerWait:  snap.WorkerWait,
		TaskType:    snap.TaskType,
	})
}

// accountRouteStats is one (account, route) row of the aggregated
// per-route call statistics.
type accountRouteStats struct {
	Account string `json:"account"`
	Route   string `json:"route"`
	Sent    int64  `json:"sent"`
	Succeed int64  `json:"succeed"`
	Failed  int64  `json:"failed"`
}

// httpStats is the GET /router/stats/http payload: the per-(account,
// route) view the student built, plus the API-layer histograms
// get_http_stats exposed in the original (process time, response status
// codes, and response payload sizes).
type httpStats struct {
	Accounts    []accountRouteStats `json:"accounts"`
	ProcessTime map[string]int64    `json:"process_time"`
	StatusCode  map[string]int64    `json:"status_code"`
	PayloadSize map[string]int64    `json:"payload_size"`
}

func (h *handlers) statsHTTP(c *gin.Context) {
	var rows []accountRouteStats
	for _, acct := range h.manager.GetAllAccounts() {
		for route, stats := range acct.ReqStats() {
			rows = append(rows, accountRouteStats{
				Account: acct.Email,
				Route:   route,
				Sent:    stats.Sent,
				Succeed: stats.Succeed,
				Failed:  stats.Failed,
			})
		}
	}
	snap := h.manager.Stats().Snapshot()
	c.JSON(http.StatusOK, httpStats{
		Accounts:    rows,
		ProcessTime: snap.ProcessTime,
		StatusCode:  snap.StatusCode,
		PayloadSize: snap.PayloadSize,
	})
}

type userStats struct {
	Login string           `json:"login"`
	Usage map[string]int64 `json:"usage"`
}

func (h *handlers) statsUsers(c *gin.Context) {
	users := h.users.all()
	out := make([]userStats, 0, len(users))
	for _, u := range users {
		out = append(out, userStats{Login: u.Login, Usage: u.Limits.Usage()})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) statsUser(c *gin.Context) {
	login := c.Param("login")
	u, ok := h.users.get(login)
	if !ok {
		writeError(c, routererr.NotFound("USER_NOT_FOUND", "user not found: "+login))
		return
	}
	c.JSON(http.StatusOK, userStats{Login: u.Login, Usage: u.Limits.Usage()})
}

type cacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

func (h *handlers) statsCache(c *gin.Context) {
	rc := h.manager.ResponseCache()
	c.JSON(http.StatusOK, cacheStats{
		Size:     rc.Size(),
		Capacity: rc.Capacity(),
		Hits:     rc.Hits(),
		Misses:   rc.Misses(),
		HitRate:  rc.HitRate(),
	})
}

type popularEntryView struct {
	Key     string `json:"key"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Query   string `json:"query"`
	Hits    int64  `json:"hits"`
	Lookups int64  `json:"lookups"`
	Users   int    `json:"users"`
}

// cacheTop serves GET /router/cache/top{n}, the literal no-separator
// path-parameter route of the original `@app.get('/router/cache/top{n}')`
// (api.py:206) — gin's router cannot express a param fused onto a static
// suffix, so the route is registered as a catch-all on the parent
// "/cache" path and "top<n>" is parsed by hand here.
//
// Ranking mirrors get_cache_top (api.py:206-219): entries are ordered by
// the tuple (distinct user count, lookups) descending, not by hits alone
// — the per-key user count (via LoginsForKey) is the primary sort key,
// lookups only the tiebreaker.
func (h *handlers) cacheTop(c *gin.Context) {
	tail := strings.TrimPrefix(c.Param("tail"), "/")
	if !strings.HasPrefix(tail, "top") {
		writeError(c, routererr.NotFound("NOT_FOUND", "unknown cache route"))
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(tail, "top"))
	if err != nil {
		writeError(c, routererr.BadRequest("INVALID_N", "top-n must be an integer"))
		return
	}
	if n < 0 {
		n = -n
	}

	rc := h.manager.ResponseCache()
	entries := rc.MostCommonRequests(-1)
	users := make(map[string]int, len(entries))
	for _, e := range entries {
		users[e.Key] = len(rc.LoginsForKey(e.Key))
	}
	sort.Slice(entries, func(i, j int) bool {
		if users[entries[i].Key] != users[entries[j].Key] {
			return users[entries[i].Key] > users[entries[j].Key]
		}
		if entries[i].Lookups != entries[j].Lookups {
			return entries[i].Lookups > entries[j].Lookups
		}
		return entries[i].Key < entries[j].Key
	})
	if n < len(entries) {
		entries = entries[:n]
	}

	out := make([]popularEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, popularEntryView{
			Key:     e.Key,
			Method:  e.Summary.Method,
			Path:    e.Summary.Path,
			Query:   e.Summary.Query,
			Hits:    e.Hits,
			Lookups: e.Lookups,
			Users:   users[e.Key],
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) cachePurge(c *gin.Context) {
	if err := h.manager.ResponseCache().Purge(c.Request.Context()); err != nil {
		writeError(c, routererr.Upstream(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// accountView is the JSON shape of an account exposed over the
// management API, a projection of account.Account that hides mutexes and
// exposes read-only derived fields.
type accountView struct {
	Email        string              `json:"email"`
	Group        string              `json:"group"`
	APIMode      string              `json:"api_mode"`
	Cost         int                 `json:"cost"`
	Banned       bool                `json:"banned"`
	Lifetime     int64               `json:"lifetime_seconds"`
	RoutingRules map[string][]string `json:"routing_rules"`
	LimitUsage   map[string]int64    `json:"limit_usage"`
}

func newAccountView(a *account.Account) accountView {
	return accountView{
		Email:        a.Email,
		Group:        a.Group,
		APIMode:      string(a.APIMode),
		Cost:         a.Cost,
		Banned:       a.Banned(),
		Lifetime:     a.Lifetime(),
		RoutingRules: a.Routing.Rules(),
		LimitUsage:   a.Limits.Usage(),
	}
}

func (h *handlers) listAccounts(c *gin.Context) {
	accounts := h.manager.GetAllAccounts()
	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountView(a))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getAccount(c *gin.Context) {
	acct, err := h.manager.GetAccount(c.Param("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountView(acct))
}

// createAccountRequest is the POST /router/accounts request body.
type createAccountRequest struct {
	Email           string           `json:"email" binding:"required"`
	APIToken        string           `json:"api_token" binding:"required"`
	Group           string           `json:"group"`
	Cost            int              `json:"cost"`
	APIMode         string           `json:"api_mode"`
	LimitRules      map[string]int64 `json:"limit_rules"`
	AllowRoutes     []string         `json:"allow_routes"`
	DenyRoutes      []string         `json:"deny_routes"`
	ExpireInSeconds int64            `json:"expire_in_seconds"`
}

func (h *handlers) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, routererr.BadRequest("INVALID_BODY", err.Error()))
		return
	}

	acct, err := account.NewAccount(req.Email, req.APIToken)
	if err != nil {
		writeError(c, routererr.BadRequest("INVALID_ACCOUNT", err.Error()))
		return
	}
	if req.Group != "" {
		acct.Group = req.Group
	}
	acct.Cost = req.Cost
	if req.APIMode != "" {
		acct.APIMode = account.APIMode(req.APIMode)
	}
	if len(req.AllowRoutes) > 0 || len(req.DenyRoutes) > 0 {
		rules := make(map[string][]string)
		if len(req.AllowRoutes) > 0 {
			rules[account.RuleAllow] = req.AllowRoutes
		}
		if len(req.DenyRoutes) > 0 {
			rules[account.RuleDeny] = req.DenyRoutes
		}
		acct.Routing = account.NewRoutingEngine(rules)
	}
	if len(req.LimitRules) > 0 {
		rules := make([]account.LimitRule, 0, len(req.LimitRules))
		for route, limit := range req.LimitRules {
			rules = append(rules, account.LimitRule{Route: route, Limit: limit})
		}
		acct.Limits.SetRules(rules)
	}
	if req.ExpireInSeconds > 0 {
		expire := time.Now().Add(time.Duration(req.ExpireInSeconds) * time.Second)
		acct.ExpireAt = &expire
	}

	if err := h.manager.AddAccount(c.Request.Context(), acct); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAccountView(acct))
}

func (h *handlers) deleteAccount(c *gin.Context) {
	if err := h.manager.RemoveAccount(c.Param("email")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) resetAll(c *gin.Context) {
	h.manager.ResetAllAccounts()
	h.users.reset()
	if err := h.manager.ResponseCache().Purge(c.Request.Context()); err != nil {
		writeError(c, routererr.Upstream(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) resetAllAccounts(c *gin.Context) {
	h.manager.ResetAllAccounts()
	c.Status(http.StatusNoContent)
}

func (h *handlers) resetAccount(c *gin.Context) {
	if err := h.manager.ResetAccount(c.Param("email")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) resetUsers(c *gin.Context) {
	h.users.reset()
	c.Status(http.StatusNoContent)
}
