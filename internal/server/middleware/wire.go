package middleware

import (
	"github.com/google/wire"
)

// ProviderSet is the middleware layer's dependency injection set,
// mirroring the teacher's middleware/wire.go.
var ProviderSet = wire.NewSet(
	NewTokenAuthMiddleware,
)
