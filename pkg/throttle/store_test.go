package throttle

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apigate/pkg/observability"
)

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now
	ctx := context.Background()

	c, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, clock.Now().Add(time.Minute), c.ResetAt)

	c, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Count)

	got, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, got.Count)

	require.NoError(t, store.Reset(ctx, "k"))
	c, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Increment(canceled, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now
	ctx := context.Background()

	_, _ = store.Increment(ctx, "short", time.Second)
	_, _ = store.Increment(ctx, "long", time.Hour)
	clock.Advance(2 * time.Second)

	got, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.Zero(t, got.Count, "expired counters read as zero")

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	c, err := store.Increment(ctx, "short", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
}

func TestSweeper(t *testing.T) {
	_, err := NewSweeper("not a schedule", NewMemoryStore(), nil)
	assert.Error(t, err)

	sweeper, err := NewSweeper("@every 1h", NewMemoryStore(), observability.NopLogger())
	require.NoError(t, err)
	sweeper.Start()
	sweeper.run()
	<-sweeper.Stop().Done()
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStore_WindowSemantics(t *testing.T) {
	store, mr := newRedisStore(t)
	limiter := NewLimiter(store, time.Second, nil)
	th := &Throttle{ID: "test", Limit: 3, Window: 60 * time.Second}
	id := Identity{Principal: "42"}
	ctx := context.Background()

	var allowed []bool
	for i := 0; i < 4; i++ {
		res, err := limiter.Check(ctx, th, id)
		require.NoError(t, err)
		allowed = append(allowed, res.Allowed)
	}
	assert.Equal(t, []bool{true, true, true, false}, allowed)

	assert.True(t, mr.Exists("apigate:throttle:test:user:42"))
	ttl := mr.TTL("apigate:throttle:test:user:42")
	assert.Equal(t, 60*time.Second, ttl, "window starts on first increment only")

	mr.FastForward(61 * time.Second)
	res, err := limiter.Check(ctx, th, id)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisStore_GetAndReset(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, got.Count)

	_, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	c, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)
	assert.WithinDuration(t, time.Now().Add(time.Minute), c.ResetAt, 2*time.Second)

	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Count)
	assert.False(t, got.ResetAt.IsZero())

	require.NoError(t, store.Reset(ctx, "k"))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, got.Count)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Increment(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	res, err := NewLimiter(store, time.Second, nil).Check(context.Background(), &Throttle{ID: "t", Limit: 5, Window: time.Minute}, Identity{})
	assert.Error(t, err)
	assert.False(t, res.Allowed)
}

func newSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Unix(1700000000, 0).UTC()
	store := NewSQLStore(db, "")
	store.now = func() time.Time { return now }
	return store, mock, now
}

func TestSQLStore_Increment(t *testing.T) {
	store, mock, now := newSQLStore(t)
	resetAt := now.Add(time.Minute)

	mock.ExpectQuery(`INSERT INTO "throttle_counters"`).
		WithArgs("test:ip:1.2.3.4", resetAt, now).
		WillReturnRows(sqlmock.NewRows([]string{"count", "reset_at"}).AddRow(4, resetAt))

	c, err := store.Increment(context.Background(), "test:ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Count)
	assert.Equal(t, resetAt, c.ResetAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_IncrementFailsClosed(t *testing.T) {
	store, mock, _ := newSQLStore(t)

	mock.ExpectQuery(`INSERT INTO "throttle_counters"`).WillReturnError(errors.New("connection refused"))

	res, err := NewLimiter(store, time.Second, nil).Check(context.Background(), &Throttle{ID: "t", Limit: 5, Window: time.Minute}, Identity{Address: "x"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, res.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Get(t *testing.T) {
	store, mock, now := newSQLStore(t)

	mock.ExpectQuery(`SELECT count, reset_at FROM "throttle_counters"`).
		WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"count", "reset_at"}).AddRow(2, now.Add(time.Minute)))
	mock.ExpectQuery(`SELECT count, reset_at FROM "throttle_counters"`).
		WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"count", "reset_at"}).AddRow(9, now.Add(-time.Second)))
	mock.ExpectQuery(`SELECT count, reset_at FROM "throttle_counters"`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	c, err := store.Get(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)

	c, err = store.Get(context.Background(), "expired")
	require.NoError(t, err)
	assert.Zero(t, c.Count)

	c, err = store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, c.Count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ResetSweepMigrate(t *testing.T) {
	store, mock, now := newSQLStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "throttle_counters"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "throttle_counters" WHERE key`).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "throttle_counters" WHERE reset_at`).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Reset(context.Background(), "k"))
	removed, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
