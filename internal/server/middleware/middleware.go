// Package middleware holds the gin-gonic/gin HTTP middleware chain for
// the router's management and proxy endpoints (SPEC_FULL.md §6),
// grounded on the teacher's internal/server/middleware package.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey namespaces gin.Context values set by this package, mirroring
// the teacher's typed ContextKey convention.
type ContextKey string

const (
	// ContextKeyLogin carries the resolved x-login value.
	ContextKeyLogin ContextKey = "login"
	// ContextKeyAdmin carries the parsed x-admin boolean.
	ContextKeyAdmin ContextKey = "admin"
)

// ProcessTime stamps the request's arrival time and, on the way out,
// echoes it back as the x-process-time response header in seconds
// (SPEC_FULL.md §6).
func ProcessTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()
		c.Header("x-process-time", fmt.Sprintf("%.6f", elapsed))
	}
}

// EchoIdentity mirrors the incoming x-login/x-admin request headers back
// onto the response, and stashes the parsed values on the gin.Context for
// handlers (SPEC_FULL.md §6).
func EchoIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		login := c.GetHeader("x-login")
		admin := c.GetHeader("x-admin") == "1" || c.GetHeader("x-admin") == "true"

		c.Set(string(ContextKeyLogin), login)
		c.Set(string(ContextKeyAdmin), admin)

		if login != "" {
			c.Header("x-login", login)
		}
		if admin {
			c.Header("x-admin", "1")
		}
		c.Next()
	}
}

// Login returns the x-login value stashed by EchoIdentity.
func Login(c *gin.Context) string {
	v, _ := c.Get(string(ContextKeyLogin))
	login, _ := v.(string)
	return login
}

// IsAdmin returns the x-admin flag stashed by EchoIdentity.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(string(ContextKeyAdmin))
	admin, _ := v.(bool)
	return admin
}
