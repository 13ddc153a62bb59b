package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrementScript increments the counter and starts its window on first use.
// Running it as one script keeps check-and-increment atomic across gateway
// instances.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore keeps counters in Redis. Windows expire through key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store. prefix defaults to
// "apigate:throttle".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "apigate:throttle"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// Increment implements Store
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("%w: redis increment: %v", ErrStoreUnavailable, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return Counter{}, fmt.Errorf("%w: unexpected script result %v", ErrStoreUnavailable, res)
	}
	count, _ := values[0].(int64)
	ttl, _ := values[1].(int64)

	return Counter{
		Key:     key,
		Count:   count,
		ResetAt: s.now().Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key string) (Counter, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, s.key(key))
	ttl := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counter{}, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
	}

	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return Counter{Key: key}, nil
	} else if err != nil {
		return Counter{}, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
	}

	counter := Counter{Key: key, Count: count}
	if d := ttl.Val(); d > 0 {
		counter.ResetAt = s.now().Add(d)
	}
	return counter, nil
}

// Reset implements Store
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: redis reset: %v", ErrStoreUnavailable, err)
	}
	return nil
}
