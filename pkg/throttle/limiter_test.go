package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apigate/pkg/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedLimiter(metrics *observability.Metrics) (*Limiter, *MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now
	limiter := NewLimiter(store, 0, metrics)
	limiter.now = clock.Now
	return limiter, store, clock
}

func TestLimiter_WindowSemantics(t *testing.T) {
	limiter, _, clock := newClockedLimiter(nil)
	th := &Throttle{ID: "test", Limit: 3, Window: 60 * time.Second}
	id := Identity{Principal: "42"}

	var allowed []bool
	for i := 0; i < 4; i++ {
		res, err := limiter.Check(context.Background(), th, id)
		require.NoError(t, err)
		allowed = append(allowed, res.Allowed)
	}
	assert.Equal(t, []bool{true, true, true, false}, allowed)

	res, err := limiter.Check(context.Background(), th, id)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "over-limit counter is not rolled back")
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60*time.Second, res.RetryAfter)

	clock.Advance(61 * time.Second)
	res, err = limiter.Check(context.Background(), th, id)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	other, err := limiter.Check(context.Background(), th, Identity{Principal: "43"})
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, 2, other.Remaining)
}

func TestLimiter_ConcurrentConsumers(t *testing.T) {
	limiter, _, _ := newClockedLimiter(nil)
	th := &Throttle{ID: "test", Limit: 10, Window: time.Minute}
	id := Identity{Address: "10.0.0.1"}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(context.Background(), th, id)
			if err == nil && res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed)
}

type blockingStore struct{ Store }

func (blockingStore) Increment(ctx context.Context, _ string, _ time.Duration) (Counter, error) {
	<-ctx.Done()
	return Counter{}, ctx.Err()
}

type failingStore struct{ Store }

func (failingStore) Increment(context.Context, string, time.Duration) (Counter, error) {
	return Counter{}, ErrStoreUnavailable
}

func TestLimiter_FailsClosed(t *testing.T) {
	th := &Throttle{ID: "test", Limit: 100, Window: time.Minute}

	t.Run("timeout", func(t *testing.T) {
		metrics := observability.NewMetrics(prometheus.NewRegistry())
		limiter := NewLimiter(blockingStore{}, 10*time.Millisecond, metrics)

		res, err := limiter.Check(context.Background(), th, Identity{Address: "x"})
		assert.False(t, res.Allowed)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThrottleStoreErrors.WithLabelValues("custom")))
	})

	t.Run("store error", func(t *testing.T) {
		limiter := NewLimiter(failingStore{}, 0, nil)

		res, err := limiter.Check(context.Background(), th, Identity{Address: "x"})
		assert.False(t, res.Allowed)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Equal(t, time.Minute, res.RetryAfter)
	})
}

func TestLimiter_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	limiter, _, _ := newClockedLimiter(metrics)
	th := &Throttle{ID: "tiny", Limit: 1, Window: time.Minute}

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(context.Background(), th, Identity{Address: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ThrottleExceededTotal.WithLabelValues("tiny")))
}

func TestLimiter_Remaining(t *testing.T) {
	limiter, _, _ := newClockedLimiter(nil)
	th := &Throttle{ID: "test", Limit: 5, Window: time.Minute}
	id := Identity{Principal: "1"}

	remaining, err := limiter.Remaining(context.Background(), th, id)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Check(context.Background(), th, id)
	require.NoError(t, err)
	remaining, err = limiter.Remaining(context.Background(), th, id)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestResult_Headers(t *testing.T) {
	reset := time.Unix(1700000060, 0)

	allowed := Result{Allowed: true, Limit: 3, Remaining: 2, ResetAt: reset}.Headers()
	assert.Equal(t, "3", allowed.Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", allowed.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060", allowed.Get("X-RateLimit-Reset"))
	assert.Empty(t, allowed.Get("Retry-After"))

	exceeded := Result{Limit: 3, ResetAt: reset, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, "2", exceeded.Headers().Get("Retry-After"))

	err := exceeded.Exceeded()
	assert.Equal(t, 429, err.StatusCode())
	assert.Equal(t, "3", err.ResponseHeaders().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", err.ResponseHeaders().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2", err.ResponseHeaders().Get("Retry-After"))
}
