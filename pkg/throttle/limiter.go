package throttle

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/observability"
)

// Result is the outcome of one throttle check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Headers returns the X-RateLimit-* headers, plus Retry-After when the
// request was rejected
func (r Result) Headers() http.Header {
	h := make(http.Header)
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	if !r.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetAt.Unix(), 10))
	}
	if !r.Allowed {
		h.Set("Retry-After", retryAfterSeconds(r.RetryAfter))
	}
	return h
}

// Exceeded builds the 429 error for a rejected result
func (r Result) Exceeded() *apierrors.Error {
	e := apierrors.TooManyRequests(r.RetryAfter)
	for key, values := range r.Headers() {
		e = e.WithHeader(key, values[0])
	}
	return e
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Limiter enforces throttles against a counter store
type Limiter struct {
	store   Store
	timeout time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLimiter creates a limiter. timeout bounds every store call; zero means
// the caller's context alone applies. metrics may be nil.
func NewLimiter(store Store, timeout time.Duration, metrics *observability.Metrics) *Limiter {
	return &Limiter{store: store, timeout: timeout, metrics: metrics, now: time.Now}
}

// CounterKey is the store key of a consumer under a throttle
func CounterKey(t *Throttle, id Identity) string {
	return t.ID + ":" + id.Key()
}

// Check counts the request against t. Store failures and timeouts fail
// closed: the result is not allowed and the store error is returned for
// logging.
func (l *Limiter) Check(ctx context.Context, t *Throttle, id Identity) (Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	counter, err := l.store.Increment(ctx, CounterKey(t, id), t.Window)
	if err != nil {
		if l.metrics != nil {
			l.metrics.ThrottleStoreErrors.WithLabelValues(storeName(l.store)).Inc()
		}
		return Result{Limit: t.Limit, RetryAfter: t.Window}, fmt.Errorf("throttle %s: %w", t.ID, err)
	}

	res := Result{
		Limit:     t.Limit,
		Remaining: t.Limit - int(counter.Count),
		ResetAt:   counter.ResetAt,
		Allowed:   counter.Count <= int64(t.Limit),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = counter.ResetAt.Sub(l.now())
		if l.metrics != nil {
			l.metrics.ThrottleExceededTotal.WithLabelValues(t.ID).Inc()
		}
	}
	return res, nil
}

// Remaining reports the quota left for a consumer without counting a request
func (l *Limiter) Remaining(ctx context.Context, t *Throttle, id Identity) (int, error) {
	counter, err := l.store.Get(ctx, CounterKey(t, id))
	if err != nil {
		return 0, err
	}
	if remaining := t.Limit - int(counter.Count); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func storeName(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "memory"
	case *RedisStore:
		return "redis"
	case *SQLStore:
		return "postgres"
	default:
		return "custom"
	}
}
