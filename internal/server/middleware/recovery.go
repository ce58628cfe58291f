package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/routerforge/acctrouter/internal/pkg/routererr"
)

// Recovery builds a gin recovery middleware that converts a panic into
// the routererr JSON envelope instead of gin's default plain-text output,
// grounded on the teacher's middleware/recovery.go (broken-pipe detection
// via net.OpError/os.SyscallError, gin.CustomRecoveryWithWriter).
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(gin.DefaultErrorWriter, func(c *gin.Context, recovered any) {
		if isBrokenPipe(recovered) {
			// The client already hung up; writing a response would fail too.
			c.Abort()
			return
		}

		err := routererr.New(http.StatusInternalServerError, "PANIC", fmt.Sprintf("internal error: %v", recovered))
		c.AbortWithStatusJSON(routererr.Code(err), routererr.Detail(err))
	})
}

func isBrokenPipe(recovered any) bool {
	err, ok := recovered.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr *os.SyscallError
		if errors.As(opErr.Err, &sysErr) {
			msg := strings.ToLower(sysErr.Error())
			if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer") {
				return true
			}
		}
	}
	msg := strings.ToLower(fmt.Sprint(err))
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
