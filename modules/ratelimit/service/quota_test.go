package service

import (
	"context"
	"testing"
	"time"

	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/auth"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis returns a client whose commands all fail, driving the
// limiter down its fail-open path without a store.
func unreachableRedis() redis.Cmdable {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

func testLimiter(t *testing.T) *Limiter {
	t.Helper()
	return NewLimiter(unreachableRedis(), config.RateLimitConfig{
		LLMPerMinute:           10,
		LLMPerDay:              100,
		TailoringPerUserDay:    5,
		ApplicationsPerUserDay: 50,
		APIPerUserMinute:       60,
		ConcurrentTailoring:    2,
		ConcurrentSessions:     3,
	}, nil, testLogger(t))
}

func TestQuotaManager_ReserveRelease(t *testing.T) {
	t.Run("reservation is granted and released", func(t *testing.T) {
		qm := NewQuotaManager(testLimiter(t), 1, testLogger(t))

		token, err := qm.Reserve(context.Background(), "u1", 5)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		waiting, inFlight := qm.QueueDepth()
		assert.Equal(t, 0, waiting)
		assert.Equal(t, 1, inFlight)

		qm.Release(context.Background(), token)
		_, inFlight = qm.QueueDepth()
		assert.Equal(t, 0, inFlight)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		qm := NewQuotaManager(testLimiter(t), 1, testLogger(t))
		token, err := qm.Reserve(context.Background(), "u1", 5)
		require.NoError(t, err)

		qm.Release(context.Background(), token)
		qm.Release(context.Background(), token)
		_, inFlight := qm.QueueDepth()
		assert.Equal(t, 0, inFlight)
	})

	t.Run("lower priority is served first", func(t *testing.T) {
		qm := NewQuotaManager(testLimiter(t), 1, testLogger(t))

		// Occupy the only slot.
		holder, err := qm.Reserve(context.Background(), "holder", 5)
		require.NoError(t, err)

		results := make(chan string, 2)
		started := make(chan struct{}, 2)

		reserve := func(name string, priority int) {
			started <- struct{}{}
			token, err := qm.Reserve(context.Background(), name, priority)
			if err == nil {
				results <- name
				qm.Release(context.Background(), token)
			}
		}

		go reserve("low-priority", 9)
		<-started
		waitForQueue(t, qm, 1)
		go reserve("high-priority", 1)
		<-started
		waitForQueue(t, qm, 2)

		qm.Release(context.Background(), holder)

		first := <-results
		second := <-results
		assert.Equal(t, "high-priority", first)
		assert.Equal(t, "low-priority", second)
	})

	t.Run("cancelled waiter leaves the queue", func(t *testing.T) {
		qm := NewQuotaManager(testLimiter(t), 1, testLogger(t))
		holder, err := qm.Reserve(context.Background(), "holder", 5)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := qm.Reserve(ctx, "waiter", 5)
			done <- err
		}()
		waitForQueue(t, qm, 1)

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)

		waiting, _ := qm.QueueDepth()
		assert.Equal(t, 0, waiting)

		qm.Release(context.Background(), holder)
	})
}

func TestQuotaManager_QueuePosition(t *testing.T) {
	qm := NewQuotaManager(testLimiter(t), 1, testLogger(t))
	holder, err := qm.Reserve(context.Background(), "holder", 5)
	require.NoError(t, err)
	defer qm.Release(context.Background(), holder)

	assert.Equal(t, -1, qm.QueuePosition("unknown"))
	assert.Equal(t, -1, qm.QueuePosition(holder))
}

func waitForQueue(t *testing.T, qm *QuotaManager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if waiting, _ := qm.QueueDepth(); waiting >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue never reached %d waiters", want)
}

func TestLimiter(t *testing.T) {
	t.Run("unknown limit type errors", func(t *testing.T) {
		l := testLimiter(t)
		_, err := l.Check(context.Background(), "nope", "u1")
		assert.Error(t, err)
	})

	t.Run("store outage fails open for admission", func(t *testing.T) {
		l := testLimiter(t)
		res, err := l.Check(context.Background(), "llm_per_minute", "global")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("admin allow-list bypass", func(t *testing.T) {
		l := NewLimiter(unreachableRedis(), config.RateLimitConfig{}, []string{"ops@example.com"}, testLogger(t))
		assert.True(t, l.IsAdmin(authIdentity("ops@example.com")))
		assert.True(t, l.IsAdmin(authIdentity("OPS@Example.com")))
		assert.False(t, l.IsAdmin(authIdentity("user@example.com")))
	})
}

func authIdentity(email string) auth.Identity {
	return auth.Identity{UserID: "u1", Email: email}
}
