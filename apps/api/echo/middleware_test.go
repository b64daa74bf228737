package echoapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-notify/core"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2021, 1, 1, 8, 0, 0, 0, time.UTC)
	rl := newRateLimiter(core.RateLimitConfig{RPS: 1, Burst: 2})
	rl.now = func() time.Time { return now }

	require.NoError(t, rl.Allow("u1"))
	require.NoError(t, rl.Allow("u1"))

	err := rl.Allow("u1")
	var rlErr *core.RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, time.Second, rlErr.RetryAfter)

	// other users have their own bucket
	assert.NoError(t, rl.Allow("u2"))

	now = now.Add(time.Second)
	assert.NoError(t, rl.Allow("u1"))
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	now := time.Date(2021, 1, 1, 8, 0, 0, 0, time.UTC)
	rl := newRateLimiter(core.RateLimitConfig{RPS: 1, Burst: 2})
	rl.now = func() time.Time { return now }
	require.Equal(t, minBucketIdle, rl.idle)

	require.NoError(t, rl.Allow("u1"))
	now = now.Add(rl.idle / 2)
	require.NoError(t, rl.Allow("u2"))
	assert.Equal(t, 2, rl.size())

	now = now.Add(rl.idle / 2)
	require.NoError(t, rl.Allow("u3"))
	assert.Equal(t, 2, rl.size())
	rl.mu.Lock()
	_, kept := rl.buckets["u1"]
	rl.mu.Unlock()
	assert.False(t, kept)

	// a forgotten user starts again with a full bucket
	require.NoError(t, rl.Allow("u1"))
	require.NoError(t, rl.Allow("u1"))
	assert.Error(t, rl.Allow("u1"))

	t.Run("slow refill keeps buckets until they are full", func(t *testing.T) {
		slow := newRateLimiter(core.RateLimitConfig{RPS: 0.01, Burst: 10})
		assert.Equal(t, 1000*time.Second, slow.idle)
	})
}
