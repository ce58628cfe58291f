//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisStoreSuite exercises RedisStore against a real redis instance,
// grounded on the teacher's testcontainers-based integration harness
// (internal/repository/integration_harness_test.go).
type RedisStoreSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	rdb       *redis.Client
	store     *RedisStore
	ctx       context.Context
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	container, err := tcredis.Run(s.ctx, "redis:8.4-alpine")
	require.NoError(s.T(), err)
	s.container = container

	addr, err := container.ConnectionString(s.ctx)
	require.NoError(s.T(), err)

	s.rdb = redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(s.T(), s.rdb.Ping(s.ctx).Err())
	s.store = NewRedisStore(s.rdb)
}

func (s *RedisStoreSuite) TearDownSuite() {
	_ = s.rdb.Close()
	_ = s.container.Terminate(s.ctx)
}

func (s *RedisStoreSuite) TestSetGetDeleteRoundTrip() {
	key := "it:rs:1"
	require.NoError(s.T(), s.store.Set(s.ctx, key, []byte("value"), time.Minute))

	got, err := s.store.Get(s.ctx, key)
	require.NoError(s.T(), err)
	s.Equal([]byte("value"), got)

	require.NoError(s.T(), s.store.Delete(s.ctx, key))
	_, err = s.store.Get(s.ctx, key)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RedisStoreSuite) TestScanAndFlushPrefix() {
	require.NoError(s.T(), s.store.Set(s.ctx, "it:rs:pfx:a", []byte("1"), time.Minute))
	require.NoError(s.T(), s.store.Set(s.ctx, "it:rs:pfx:b", []byte("2"), time.Minute))

	keys, err := s.store.ScanPrefix(s.ctx, "it:rs:pfx:")
	require.NoError(s.T(), err)
	s.Len(keys, 2)

	require.NoError(s.T(), s.store.FlushPrefix(s.ctx, "it:rs:pfx:"))
	size, err := s.store.SizePrefix(s.ctx, "it:rs:pfx:")
	require.NoError(s.T(), err)
	s.EqualValues(0, size)
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}
