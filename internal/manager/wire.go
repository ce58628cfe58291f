package manager

import (
	"github.com/google/wire"

	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/worker"
)

// ProviderSet is this package's dependency injection set.
var ProviderSet = wire.NewSet(ProvideManager)

// ProvideManager builds the Manager from the root Config plus the
// already-wired caches and upstream caller.
func ProvideManager(cfg *config.Config, responseCache *cache.ResponseCache, bindCache *cache.BindCache, upstream worker.UpstreamCaller) *Manager {
	return New(*cfg, responseCache, bindCache, upstream)
}
