package cache

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/routerforge/acctrouter/internal/config"
)

// ProviderSet is this package's dependency injection set.
var ProviderSet = wire.NewSet(
	ProvideRedisClient,
	NewRedisStore,
	ProvideResponseCache,
	ProvideBindCache,
)

// ProvideRedisClient builds the shared redis client from the root
// Config's RedisConfig section.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return NewRedisClient(cfg.Redis)
}

// ProvideResponseCache builds the ResponseCache from DonorConfig's
// http_cache_* knobs.
func ProvideResponseCache(store *RedisStore, cfg *config.Config) *ResponseCache {
	d := cfg.Donor
	return NewResponseCache(store, d.HTTPCacheCapacity, d.HTTPCacheItemMaxSize, d.HTTPCacheSizeThreshold, d.HTTPCacheDefaultTTL(), d.HTTPCacheShortTTL())
}

// ProvideBindCache builds the BindCache from DonorConfig/GatewayConfig
// TTL knobs.
func ProvideBindCache(store *RedisStore, cfg *config.Config) *BindCache {
	return NewBindCache(store, cfg.Donor.BindRequestsTTL(), cfg.Gateway.BindScanMemoizeTTL())
}
