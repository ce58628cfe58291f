package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routerforge/acctrouter/internal/config"
)

// flushPrefixScript deletes every key under prefix in one round trip,
// using SCAN rather than KEYS so it does not block the server on large
// keyspaces (grounded in the teacher's concurrency_cache.go Lua-script
// style for atomic multi-key operations).
var flushPrefixScript = redis.NewScript(`
	local cursor = '0'
	local prefix = ARGV[1]
	local deleted = 0
	repeat
		local res = redis.call('SCAN', cursor, 'MATCH', prefix .. '*', 'COUNT', 1000)
		cursor = res[1]
		local keys = res[2]
		if #keys > 0 then
			deleted = deleted + redis.call('DEL', unpack(keys))
		end
	until cursor == '0'
	return deleted
`)

// RedisStore is a Store backed by a shared redis/go-redis/v9 client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient builds a *redis.Client from RedisConfig, mirroring the
// teacher's InitRedis/buildRedisOptions pool-sizing and timeout knobs.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

// NewRedisStore wraps an existing redis client as a Store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) FlushPrefix(ctx context.Context, prefix string) error {
	return flushPrefixScript.Run(ctx, s.rdb, nil, prefix).Err()
}

func (s *RedisStore) SizePrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
