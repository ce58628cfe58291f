package server

import (
	"github.com/gin-gonic/gin"
)

// registerRoutes wires the management and proxy endpoints of
// SPEC_FULL.md §6 behind the x-token auth middleware, grounded on the
// teacher's router.go registerRoutes/RegisterXRoutes split.
func registerRoutes(r *gin.Engine, h *handlers, tokenAuth gin.HandlerFunc) {
	router := r.Group("/router", tokenAuth)
	{
		router.GET("/ping", h.ping)

		stats := router.Group("/stats")
		{
			stats.GET("/service", h.statsService)
			stats.GET("/http", h.statsHTTP)
			stats.GET("/users", h.statsUsers)
			stats.GET("/users/:login", h.statsUser)
			stats.GET("/cache", h.statsCache)
		}

		// "/cache/top{n}" has no slash before the parameter, unlike every
		// other {param} route above — gin cannot fuse a static suffix and
		// a named param into one segment, so this is a catch-all that
		// cacheTop parses by hand (top<n> joined with no separator).
		router.GET("/cache/*tail", h.cacheTop)
		router.DELETE("/cache", h.cachePurge)

		router.GET("/accounts", h.listAccounts)
		router.GET("/accounts/:email", h.getAccount)
		router.POST("/accounts", h.createAccount)
		router.DELETE("/accounts/:email", h.deleteAccount)

		router.POST("/reset", h.resetAll)
		router.POST("/reset/accounts", h.resetAllAccounts)
		router.POST("/reset/accounts/:email", h.resetAccount)
		router.POST("/reset/users", h.resetUsers)
	}

	api := r.Group("/api", tokenAuth)
	api.Any("/*rest", h.proxy)
}
