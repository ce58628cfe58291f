package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerforge/acctrouter/internal/config"
)

func TestCheckAndIncrementEnforcesDailyLimit(t *testing.T) {
	reg := newUserRegistry(config.AuthConfig{
		DailyLimitsPerUser: map[string]int64{"/wb/search": 2},
	})

	exceeded, err := reg.checkAndIncrement("alice", "/wb/search")
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = reg.checkAndIncrement("alice", "/wb/search")
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = reg.checkAndIncrement("alice", "/wb/search")
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestCheckAndIncrementSkipsUnlimitedUsers(t *testing.T) {
	reg := newUserRegistry(config.AuthConfig{
		UnlimitedUsersRe:   []string{"^admin"},
		DailyLimitsPerUser: map[string]int64{"/wb/search": 1},
	})

	for i := 0; i < 5; i++ {
		exceeded, err := reg.checkAndIncrement("admin-1", "/wb/search")
		require.NoError(t, err)
		assert.False(t, exceeded)
	}
	_, ok := reg.get("admin-1")
	assert.False(t, ok, "unlimited logins are never tracked")
}

func TestCheckAndIncrementSkipsEmptyLogin(t *testing.T) {
	reg := newUserRegistry(config.AuthConfig{DailyLimitsPerUser: map[string]int64{"/wb/search": 1}})
	exceeded, err := reg.checkAndIncrement("", "/wb/search")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestIsUnlimitedMatchesConfiguredPatterns(t *testing.T) {
	reg := newUserRegistry(config.AuthConfig{UnlimitedUsersRe: []string{"^svc-.*"}})
	assert.True(t, reg.isUnlimited("svc-internal"))
	assert.False(t, reg.isUnlimited("alice"))
}

func TestResetClearsTrackedUsers(t *testing.T) {
	reg := newUserRegistry(config.AuthConfig{DailyLimitsPerUser: map[string]int64{"/wb/search": 10}})
	_, err := reg.getOrCreate("alice")
	require.NoError(t, err)
	assert.Len(t, reg.all(), 1)

	reg.reset()
	assert.Empty(t, reg.all())
}
