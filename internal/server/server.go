// Package server wires the gin-gonic/gin HTTP front door: the x-token
// protected management API and the /api/{rest} proxy endpoint described
// in SPEC_FULL.md §6, grounded on the teacher's internal/server package
// (http.go/router.go) and its middleware chain.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/manager"
	"github.com/routerforge/acctrouter/internal/server/middleware"
)

// ProviderSet is this package's dependency injection set.
var ProviderSet = wire.NewSet(
	ProvideRouter,
	ProvideHTTPServer,
)

// extendedStatusText supplies human-readable reason phrases for the
// router's 9xx status codes. net/http's own status-text table is
// unexported and cannot be extended, but WriteHeader accepts any code in
// [100, 999]; the table is reachable only through StatusText below, and
// responses are written with the bare numeric code.
var extendedStatusText = map[int]string{
	900: "bad request",
	901: "auth failed",
	903: "no workers available",
	904: "not found",
	905: "task timeout",
	910: "upstream failed",
	929: "quota exceeded",
}

// StatusText returns the reason phrase for code, falling back to
// net/http's table for standard codes.
func StatusText(code int) string {
	if text, ok := extendedStatusText[code]; ok {
		return text
	}
	return http.StatusText(code)
}

// ProvideRouter builds the gin.Engine: recovery, CORS, process-time and
// identity-echo middleware, then registers the management and proxy
// routes behind the x-token auth middleware.
func ProvideRouter(cfg *config.Config, mgr *manager.Manager, tokenAuth middleware.TokenAuthMiddleware) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ProcessTime())
	r.Use(middleware.EchoIdentity())

	h := newHandlers(mgr, cfg, newUserRegistry(cfg.Auth))
	registerRoutes(r, h, gin.HandlerFunc(tokenAuth))
	return r
}

// ProvideHTTPServer builds the *http.Server, deliberately omitting
// WriteTimeout/ReadTimeout since proxied upstream responses may stream
// for longer than a fixed deadline would allow, matching the teacher's
// own reasoning in http.go.
func ProvideHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
}
