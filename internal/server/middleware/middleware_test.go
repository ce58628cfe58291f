package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProcessTimeSetsHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ProcessTime())
	r.GET("/t", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))

	assert.NotEmpty(t, w.Header().Get("x-process-time"))
}

func TestEchoIdentityReflectsLoginAndAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(EchoIdentity())
	r.GET("/t", func(c *gin.Context) {
		assert.Equal(t, "alice", Login(c))
		assert.True(t, IsAdmin(c))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("x-login", "alice")
	req.Header.Set("x-admin", "1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "alice", w.Header().Get("x-login"))
	assert.Equal(t, "1", w.Header().Get("x-admin"))
}

func TestEchoIdentityDefaultsWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(EchoIdentity())
	r.GET("/t", func(c *gin.Context) {
		assert.Equal(t, "", Login(c))
		assert.False(t, IsAdmin(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
	assert.Empty(t, w.Header().Get("x-login"))
}
