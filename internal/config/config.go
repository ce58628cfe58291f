// Package config provides configuration loading, defaults, and validation
// for the router, layered with spf13/viper over YAML + environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Connection pool isolation strategies for the upstream transport pool.
const (
	PoolIsolationProxy        = "proxy"
	PoolIsolationAccount      = "account"
	PoolIsolationAccountProxy = "account_proxy"
)

// Config is the root configuration object, loaded once at startup.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Gateway  GatewayConfig `mapstructure:"gateway"`
	Donor    DonorConfig   `mapstructure:"donor"`
	LogLevel string        `mapstructure:"log_level"`
	Debug    bool          `mapstructure:"debug"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout"`
	IdleTimeout       int    `mapstructure:"idle_timeout"`
}

// RedisConfig describes the shared key/value store backing the response
// and bind caches.
type RedisConfig struct {
	Address         string `mapstructure:"address"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	DialTimeoutSec  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_seconds"`
	PoolSize        int    `mapstructure:"pool_size"`
	MinIdleConns    int    `mapstructure:"min_idle_conns"`
}

func (r RedisConfig) DialTimeout() time.Duration  { return time.Duration(r.DialTimeoutSec) * time.Second }
func (r RedisConfig) ReadTimeout() time.Duration  { return time.Duration(r.ReadTimeoutSec) * time.Second }
func (r RedisConfig) WriteTimeout() time.Duration { return time.Duration(r.WriteTimeoutSec) * time.Second }

// AuthConfig controls the management/proxy x-token check and per-user quotas.
type AuthConfig struct {
	Token              string           `mapstructure:"token"`
	UnlimitedUsersRe   []string         `mapstructure:"unlimited_users"`
	DailyLimitsPerUser map[string]int64 `mapstructure:"daily_limits_per_user"`
}

// GatewayConfig controls scheduling timeouts and queueing.
type GatewayConfig struct {
	TaskTimeoutSec        int `mapstructure:"task_timeout_seconds"`
	WorkersTimeoutSec     int `mapstructure:"workers_timeout_seconds"`
	QueueMaxSize          int `mapstructure:"queue_maxsize"`
	QueueWarnThreshold    int `mapstructure:"queue_warn_threshold"`
	BindScanMemoizeTTLSec int `mapstructure:"bind_scan_memoize_ttl_seconds"`
}

func (g GatewayConfig) TaskTimeout() time.Duration    { return time.Duration(g.TaskTimeoutSec) * time.Second }
func (g GatewayConfig) WorkersTimeout() time.Duration { return time.Duration(g.WorkersTimeoutSec) * time.Second }
func (g GatewayConfig) BindScanMemoizeTTL() time.Duration {
	return time.Duration(g.BindScanMemoizeTTLSec) * time.Second
}

// BindPathRule is one entry of DonorConfig.BindRequestsPathRe: a path
// regex plus the subset of query parameters used to build the bind key.
type BindPathRule struct {
	PathRe string   `mapstructure:"path"`
	Params []string `mapstructure:"params"`
}

// DonorConfig holds the per-deployment defaults applied to every account
// that does not override them, plus the upstream-facing cache/cooldown
// policy knobs (named after the original "donor" account pool concept).
type DonorConfig struct {
	NetworkTimeoutSec     int                 `mapstructure:"network_timeout_seconds"`
	NetworkRetries        int                 `mapstructure:"network_retries"`
	BannedStatusCodes     []int               `mapstructure:"banned_status_codes"`
	FreezeStatusCodes     []int               `mapstructure:"freeze_status_codes"`
	RetryAfterHeader      string              `mapstructure:"retry_after_header"`
	RetryAfterMaxTimeSec  float64             `mapstructure:"retry_after_max_time_seconds"`
	FreezeTimeInitialSec  float64             `mapstructure:"freeze_time_initial_seconds"`
	FreezeTimeMaxSec      float64             `mapstructure:"freeze_time_max_seconds"`
	FreezeTimeFactor      float64             `mapstructure:"freeze_time_factor"`
	PassthroughHeaders    []string            `mapstructure:"passthrough_headers"`
	BindRequestsTTLSec    int                 `mapstructure:"bind_requests_cache_ttl_seconds"`
	BindRequestsPathRe    []BindPathRule      `mapstructure:"bind_requests_path_re"`
	DefaultRoutingRules   map[string][]string `mapstructure:"default_routing_rules"`
	DailyLimitsPerAccount map[string]int64    `mapstructure:"daily_limits_per_account"`

	// UpstreamBaseURL is the single third-party API host every account's
	// requests are forwarded to. The pool has exactly one upstream vendor,
	// so this lives here rather than on Account.
	UpstreamBaseURL    string            `mapstructure:"upstream_base_url"`
	AuthHeaderName     string            `mapstructure:"auth_header_name"`
	DefaultHeaders     map[string]string `mapstructure:"default_headers"`

	// Account cooldown defaults, applied when an account is registered
	// without an explicit cooldown override.
	DefaultCooldownMode       string  `mapstructure:"default_cooldown_mode"`
	DefaultCooldownWindowSize float64 `mapstructure:"default_cooldown_window_size"`
	DefaultCooldownPeriod     float64 `mapstructure:"default_cooldown_period"`

	HTTPCacheEnabled       bool  `mapstructure:"http_cache_enabled"`
	HTTPCacheCapacity      int   `mapstructure:"http_cache_capacity"`
	HTTPCacheItemMaxSize   int64 `mapstructure:"http_cache_item_maxsize"`
	HTTPCacheSizeThreshold int64 `mapstructure:"http_cache_size_threshold"`
	HTTPCacheDefaultTTLSec int   `mapstructure:"http_cache_default_ttl_seconds"`
	HTTPCacheShortTTLSec   int   `mapstructure:"http_cache_short_ttl_seconds"`

	ConnectionPoolIsolation string `mapstructure:"connection_pool_isolation"`
	MaxIdleConns            int    `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost     int    `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost         int    `mapstructure:"max_conns_per_host"`
	IdlePoolEntryTTLSec     int    `mapstructure:"idle_pool_entry_ttl_seconds"`
	MaxPoolEntries          int    `mapstructure:"max_pool_entries"`
}

func (d DonorConfig) NetworkTimeout() time.Duration {
	return time.Duration(d.NetworkTimeoutSec) * time.Second
}
func (d DonorConfig) RetryAfterMaxTime() time.Duration {
	return time.Duration(d.RetryAfterMaxTimeSec * float64(time.Second))
}
func (d DonorConfig) FreezeTimeInitial() time.Duration {
	return time.Duration(d.FreezeTimeInitialSec * float64(time.Second))
}
func (d DonorConfig) FreezeTimeMax() time.Duration {
	return time.Duration(d.FreezeTimeMaxSec * float64(time.Second))
}
func (d DonorConfig) HTTPCacheDefaultTTL() time.Duration {
	return time.Duration(d.HTTPCacheDefaultTTLSec) * time.Second
}
func (d DonorConfig) HTTPCacheShortTTL() time.Duration {
	return time.Duration(d.HTTPCacheShortTTLSec) * time.Second
}
func (d DonorConfig) BindRequestsTTL() time.Duration {
	return time.Duration(d.BindRequestsTTLSec) * time.Second
}
func (d DonorConfig) IdlePoolEntryTTL() time.Duration {
	return time.Duration(d.IdlePoolEntryTTLSec) * time.Second
}

// Load reads the file at configPath, or, when configPath is empty,
// config.yaml from the search paths below, plus environment overrides (dots replaced by underscores, e.g.
// ROUTER_REDIS_ADDRESS), applies defaults, and unmarshals into a Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/acctrouter")
	}

	v.SetEnvPrefix("router")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout_seconds", 5)
	v.SetDefault("redis.read_timeout_seconds", 3)
	v.SetDefault("redis.write_timeout_seconds", 3)
	v.SetDefault("redis.pool_size", 64)
	v.SetDefault("redis.min_idle_conns", 8)

	v.SetDefault("auth.token", "change-me")
	v.SetDefault("auth.unlimited_users", []string{"^cache", "^admin"})

	v.SetDefault("gateway.task_timeout_seconds", 90)
	v.SetDefault("gateway.workers_timeout_seconds", 30)
	v.SetDefault("gateway.queue_maxsize", 25)
	v.SetDefault("gateway.queue_warn_threshold", 10)
	v.SetDefault("gateway.bind_scan_memoize_ttl_seconds", 2)

	v.SetDefault("donor.network_timeout_seconds", 60)
	v.SetDefault("donor.network_retries", 1)
	v.SetDefault("donor.banned_status_codes", []int{403})
	v.SetDefault("donor.freeze_status_codes", []int{429})
	v.SetDefault("donor.retry_after_header", "retry-after")
	v.SetDefault("donor.retry_after_max_time_seconds", 3600.0)
	v.SetDefault("donor.freeze_time_initial_seconds", 5.0)
	v.SetDefault("donor.freeze_time_max_seconds", 60.0)
	v.SetDefault("donor.freeze_time_factor", 2.0)
	v.SetDefault("donor.passthrough_headers", []string{"content-type", "content-encoding"})
	v.SetDefault("donor.upstream_base_url", "https://api.upstreamvendor.example")
	v.SetDefault("donor.auth_header_name", "X-Upstream-Token")
	v.SetDefault("donor.default_headers", map[string]string{
		"user-agent":   "acctrouter/1.0",
		"content-type": "application/json",
	})
	v.SetDefault("donor.default_cooldown_mode", "window")
	v.SetDefault("donor.default_cooldown_window_size", 5.0)
	v.SetDefault("donor.default_cooldown_period", 30.0)
	v.SetDefault("donor.bind_requests_cache_ttl_seconds", 4*3600)
	v.SetDefault("donor.http_cache_enabled", true)
	v.SetDefault("donor.http_cache_capacity", 30000)
	v.SetDefault("donor.http_cache_item_maxsize", int64(15*1024*1024))
	v.SetDefault("donor.http_cache_size_threshold", int64(5*1024*1024))
	v.SetDefault("donor.http_cache_default_ttl_seconds", 24*3600)
	v.SetDefault("donor.http_cache_short_ttl_seconds", 3600)
	v.SetDefault("donor.connection_pool_isolation", PoolIsolationAccountProxy)
	v.SetDefault("donor.max_idle_conns", 240)
	v.SetDefault("donor.max_idle_conns_per_host", 16)
	v.SetDefault("donor.max_conns_per_host", 0)
	v.SetDefault("donor.idle_pool_entry_ttl_seconds", 300)
	v.SetDefault("donor.max_pool_entries", 2000)
}
