//go:build wireinject
// +build wireinject

package main

import (
	"net/http"

	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/manager"
	"github.com/routerforge/acctrouter/internal/server"
	"github.com/routerforge/acctrouter/internal/server/middleware"
	"github.com/routerforge/acctrouter/internal/upstream"

	"github.com/google/wire"
)

// Application bundles the fully-wired HTTP server, the Manager it fronts,
// and its teardown hook, mirroring the teacher's Application/Cleanup
// split in cmd/server/wire.go.
type Application struct {
	Server  *http.Server
	Manager *manager.Manager
	Cleanup func()
}

// initializeApplication is never built directly; `go generate` would run
// `wire` against this file to produce wire_gen.go. Since the wire binary
// is never invoked in this module, wire_gen.go is authored by hand and
// must be kept in step with the provider graph below.
func initializeApplication(configPath string, tokenHash string) (*Application, error) {
	wire.Build(
		config.ProviderSet,
		cache.ProviderSet,
		upstream.ProviderSet,
		manager.ProviderSet,
		middleware.ProviderSet,
		server.ProviderSet,

		provideTokenHash,
		provideCleanup,
		wire.Struct(new(Application), "Server", "Manager", "Cleanup"),
	)
	return nil, nil
}

func provideTokenHash(tokenHash string) string { return tokenHash }
