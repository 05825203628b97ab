package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/metrics"
)

const (
	// DefaultTxRetries bounds re-execution of a transaction body after a
	// serialization failure.
	DefaultTxRetries = 3
	// DefaultLockStaleness is the age after which a held resource lock is
	// treated as abandoned and may be force-acquired.
	DefaultLockStaleness = 5 * time.Second
)

// DB wraps a PostgreSQL connection pool. It is the ledger store: accounts,
// orders, match logs and resource locks all live here, and every mutating
// engine operation runs inside one of its transactions.
type DB struct {
	Pool *pgxpool.Pool

	// TxRetries and LockStaleness default to the package constants; callers
	// may override them from configuration before use.
	TxRetries     int
	LockStaleness time.Duration
}

// NewDB initializes a new database connection pool.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{
		Pool:          pool,
		TxRetries:     DefaultTxRetries,
		LockStaleness: DefaultLockStaleness,
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// WithTx runs fn inside a serializable transaction. The body is re-executed
// after serialization failures, so it must have no side effects other than
// its own writes; aborted attempts leave nothing behind.
func (db *DB) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	retries := db.TxRetries
	if retries < 0 {
		retries = 0
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.TxRetries.Inc()
		}
		err = db.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// retryable reports whether the error is a serialization failure or
// deadlock, both of which are safe to re-execute.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
