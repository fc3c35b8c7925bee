package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a persistent Store backed by SQLite.
//
// Every operation runs in a single transaction over a one-connection pool, so
// operations from goroutines sharing the store are serialized. The database is
// embedded, which makes the host clock the store clock.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock sets the clock the store reads "now" from.
func WithSQLiteClock(c clockwork.Clock) SQLiteOption {
	return func(s *SQLiteStore) {
		s.clock = c
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteStore(dsn string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("drl/store: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("drl/store: set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS drl_counters (
			key        TEXT PRIMARY KEY,
			amount     REAL NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			period_ns  INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("drl/store: create table: %w", err)
	}

	s := &SQLiteStore{db: db, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Increment atomically adds n to the decayed counter for key if it fits.
func (s *SQLiteStore) Increment(ctx context.Context, key string, n int64, l Limit) (Result, error) {
	return s.apply(ctx, key, l, incrementOp(n, l))
}

// Decrement atomically subtracts n from the decayed counter for key.
func (s *SQLiteStore) Decrement(ctx context.Context, key string, n int64, l Limit) (float64, error) {
	res, err := s.apply(ctx, key, l, decrementOp(n, l))
	return res.Used, err
}

// Peek returns the decayed counter for key without changing it.
func (s *SQLiteStore) Peek(ctx context.Context, key string, n int64, l Limit) (Result, error) {
	return s.apply(ctx, key, l, peekOp(n, l))
}

// Reset sets the counter for key to zero.
func (s *SQLiteStore) Reset(ctx context.Context, key string, l Limit) error {
	_, err := s.apply(ctx, key, l, resetOp())
	return err
}

// Sweep deletes counters that have been idle for at least their period and
// returns how many were removed. Expired counters read as zero either way;
// sweeping only reclaims space.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM drl_counters WHERE updated_at + period_ns <= ?`, s.clock.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("drl/store: sweep: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) apply(ctx context.Context, key string, l Limit, fn op) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("drl/store: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		c       Counter
		updated int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT amount, updated_at FROM drl_counters WHERE key = ?`, key,
	).Scan(&c.Amount, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Absent key, zero counter.
	case err != nil:
		return Result{}, fmt.Errorf("drl/store: read %s: %w", key, err)
	default:
		c.Timestamp = time.Unix(0, updated)
	}

	next, res := fn(c, s.clock.Now())
	if next == nil {
		return res, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO drl_counters (key, amount, updated_at, period_ns) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at,
			period_ns = excluded.period_ns
	`, key, next.Amount, next.Timestamp.UnixNano(), int64(l.Period))
	if err != nil {
		return Result{}, fmt.Errorf("drl/store: write %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("drl/store: commit: %w", err)
	}
	return res, nil
}
