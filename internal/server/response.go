package server

import (
	"github.com/gin-gonic/gin"

	"github.com/routerforge/acctrouter/internal/pkg/routererr"
)

// writeError renders err as the {"detail": "..."} envelope described in
// SPEC_FULL.md §7, at its routererr status code.
func writeError(c *gin.Context, err error) {
	code, _ := routererr.ToHTTP(err)
	c.JSON(code, routererr.Detail(err))
}
