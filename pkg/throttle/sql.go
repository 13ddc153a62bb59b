package throttle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DefaultTable is the counter table of SQLStore
const DefaultTable = "throttle_counters"

// SQLStore keeps counters in a PostgreSQL table. Every increment is a single
// upsert, so concurrent requests on one key serialize on its row.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time

	schema    string
	increment string
	get       string
	reset     string
	sweep     string
}

// NewSQLStore creates a store over db. table defaults to DefaultTable.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	t := pq.QuoteIdentifier(table)

	return &SQLStore{
		db:  db,
		now: time.Now,
		schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	count BIGINT NOT NULL,
	reset_at TIMESTAMPTZ NOT NULL
)`, t),
		increment: fmt.Sprintf(`INSERT INTO %[1]s (key, count, reset_at) VALUES ($1, 1, $2)
ON CONFLICT (key) DO UPDATE SET
	count = CASE WHEN %[1]s.reset_at <= $3 THEN 1 ELSE %[1]s.count + 1 END,
	reset_at = CASE WHEN %[1]s.reset_at <= $3 THEN $2 ELSE %[1]s.reset_at END
RETURNING count, reset_at`, t),
		get:   fmt.Sprintf(`SELECT count, reset_at FROM %s WHERE key = $1`, t),
		reset: fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, t),
		sweep: fmt.Sprintf(`DELETE FROM %s WHERE reset_at <= $1`, t),
	}
}

// Migrate creates the counter table when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema); err != nil {
		return fmt.Errorf("create counter table: %w", err)
	}
	return nil
}

// Increment implements Store
func (s *SQLStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	now := s.now().UTC()
	counter := Counter{Key: key}

	err := s.db.QueryRowContext(ctx, s.increment, key, now.Add(window), now).Scan(&counter.Count, &counter.ResetAt)
	if err != nil {
		return Counter{}, fmt.Errorf("%w: postgres increment: %v", ErrStoreUnavailable, err)
	}
	return counter, nil
}

// Get implements Store. Expired rows report a zero count.
func (s *SQLStore) Get(ctx context.Context, key string) (Counter, error) {
	counter := Counter{Key: key}

	err := s.db.QueryRowContext(ctx, s.get, key).Scan(&counter.Count, &counter.ResetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Counter{Key: key}, nil
	} else if err != nil {
		return Counter{}, fmt.Errorf("%w: postgres get: %v", ErrStoreUnavailable, err)
	}

	if !s.now().Before(counter.ResetAt) {
		return Counter{Key: key}, nil
	}
	return counter, nil
}

// Reset implements Store
func (s *SQLStore) Reset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.reset, key); err != nil {
		return fmt.Errorf("%w: postgres reset: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed
func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.sweep, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep counters: %w", err)
	}
	return int(n), nil
}
