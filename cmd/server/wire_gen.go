//go:build !wireinject
// +build !wireinject

package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/routerforge/acctrouter/internal/cache"
	"github.com/routerforge/acctrouter/internal/config"
	"github.com/routerforge/acctrouter/internal/manager"
	"github.com/routerforge/acctrouter/internal/server"
	"github.com/routerforge/acctrouter/internal/server/middleware"
	"github.com/routerforge/acctrouter/internal/upstream"
)

// Application bundles the fully-wired HTTP server, the Manager it
// fronts, and its teardown hook, matching wire.go's wireinject-only
// declaration.
type Application struct {
	Server  *http.Server
	Manager *manager.Manager
	Cleanup func()
}

// initializeApplication hand-builds the provider graph wire.go declares
// via wire.Build (the wire binary is never invoked in this module;
// SPEC_FULL.md §10.5 calls for a hand-authored wire_gen.go in its place).
func initializeApplication(configPath, tokenHash string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rdb := cache.ProvideRedisClient(cfg)
	store := cache.NewRedisStore(rdb)
	responseCache := cache.ProvideResponseCache(store, cfg)
	bindCache := cache.ProvideBindCache(store, cfg)

	pool := upstream.ProvideTransportPool(cfg)
	httpClient := upstream.NewClient(pool)
	accountClient := upstream.ProvideAccountClient(httpClient, cfg)
	upstreamCaller := upstream.ProvideUpstreamCaller(accountClient)

	mgr := manager.ProvideManager(cfg, responseCache, bindCache, upstreamCaller)

	token, hash := cfg.Auth.Token, tokenHash
	if hash == "" && strings.HasPrefix(token, "$2") {
		hash, token = token, ""
	}
	tokenAuth := middleware.NewTokenAuthMiddleware(token, hash)

	router := server.ProvideRouter(cfg, mgr, tokenAuth)
	httpServer := server.ProvideHTTPServer(cfg, router)

	return &Application{
		Server:  httpServer,
		Manager: mgr,
		Cleanup: provideCleanup(rdb, mgr),
	}, nil
}

// provideCleanup releases the redis client and drops every registered
// account's worker on shutdown, mirroring the teacher's reverse-
// dependency-order cleanup steps in cmd/server/wire.go.
func provideCleanup(rdb *redis.Client, mgr *manager.Manager) func() {
	return func() {
		mgr.RemoveAllAccounts()
		if err := rdb.Close(); err != nil {
			log.Printf("[cleanup] redis close failed: %v", err)
		} else {
			log.Printf("[cleanup] redis closed")
		}
	}
}
