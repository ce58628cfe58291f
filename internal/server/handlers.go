package server

import (
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/manager"
)

// handlers bundles the dependencies every route handler needs, mirroring
// the teacher's handler.Handlers aggregate (minus the per-domain handler
// split, since this router has one HTTP surface rather than many).
type handlers struct {
	manager *manager.Manager
	cfg     *config.Config
	users   *userRegistry
}

func newHandlers(mgr *manager.Manager, cfg *config.Config, users *userRegistry) *handlers {
	return &handlers{manager: mgr, cfg: cfg, users: users}
}
