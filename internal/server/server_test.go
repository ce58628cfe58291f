package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/routerforge/acctrouter/internal/account"
	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/manager"
	"github.com/routerforge/acctrouter/internal/server/middleware"

	"github.com/gin-gonic/gin"
)

// httptestRequestWithHeader builds a request carrying the management
// token plus whatever extra request headers a proxy test needs (x-cache,
// x-admin, x-login, ...).
func httptestRequestWithHeader(method, path, token string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("x-token", token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func doServe(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const testToken = "test-token"

type stubUpstream struct {
	status  int
	headers http.Header
	body    []byte
}

func (s *stubUpstream) Call(ctx context.Context, acct *account.Account, method, path string, headers http.Header, query url.Values, body []byte) (int, http.Header, []byte, error) {
	return s.status, s.headers, s.body, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			Token:            testToken,
			UnlimitedUsersRe: []string{"^admin"},
		},
		Gateway: config.GatewayConfig{
			QueueMaxSize:       25,
			QueueWarnThreshold: 10,
			WorkersTimeoutSec:  2,
			TaskTimeoutSec:     2,
		},
		Donor: config.DonorConfig{
			FreezeTimeInitialSec: 5,
			FreezeTimeMaxSec:     60,
			FreezeTimeFactor:     2,
			BannedStatusCodes:    []int{403},
			FreezeStatusCodes:    []int{429},
		},
	}
}

func newTestRouter(cfg *config.Config, status int, respBody []byte) (*gin.Engine, *manager.Manager) {
	gin.SetMode(gin.TestMode)
	responseCache := cache.NewResponseCache(cache.NewMemoryStore(), 100, 0, 0, time.Hour, time.Hour)
	bindCache := cache.NewBindCache(cache.NewMemoryStore(), time.Hour, 0)
	up := &stubUpstream{status: status, body: respBody}
	mgr := manager.New(*cfg, responseCache, bindCache, up)
	tokenAuth := middleware.NewTokenAuthMiddleware(cfg.Auth.Token, "")
	return ProvideRouter(cfg, mgr, tokenAuth), mgr
}

func newTestAccount(email string, cost int) *account.Account {
	acct, _ := account.NewAccount(email, "token-"+email)
	acct.Cost = cost
	acct.CooldownMode = account.CooldownInterval
	acct.CooldownParam = account.ScalarCooldown(0)
	return acct
}
