package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// AcquireLock attempts to take the mutual-exclusion marker for a resource
// kind. It runs its own short transaction: if the lock record is absent,
// unlocked, or older than the staleness threshold (abandoned by a crashed
// holder), the lock is written as held and the call succeeds. Otherwise it
// fails immediately; there is no blocking or queueing.
func (db *DB) AcquireLock(ctx context.Context, kind models.ResourceKind) (bool, error) {
	acquired := false
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		acquired = false

		var locked, stale bool
		err := tx.QueryRow(ctx,
			`SELECT locked, (now() - locked_at) > make_interval(secs => $2)
			 FROM resource_locks WHERE kind = $1 FOR UPDATE`,
			kind, db.LockStaleness.Seconds()).Scan(&locked, &stale)
		if err == pgx.ErrNoRows {
			_, err := tx.Exec(ctx,
				"INSERT INTO resource_locks (kind, locked, locked_at) VALUES ($1, true, now())",
				kind)
			if err != nil {
				return fmt.Errorf("failed to create lock: %w", err)
			}
			acquired = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read lock: %w", err)
		}

		if locked && !stale {
			return nil
		}

		_, err = tx.Exec(ctx,
			"UPDATE resource_locks SET locked = true, locked_at = now() WHERE kind = $1",
			kind)
		if err != nil {
			return fmt.Errorf("failed to take lock: %w", err)
		}
		acquired = true
		return nil
	})
	return acquired, err
}

// ReleaseLock unconditionally marks the lock for a resource kind as free.
func (db *DB) ReleaseLock(ctx context.Context, kind models.ResourceKind) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO resource_locks (kind, locked, locked_at) VALUES ($1, false, now())
		 ON CONFLICT (kind) DO UPDATE SET locked = false, locked_at = now()`,
		kind)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// GetLock reads the current lock record for a resource kind.
func (db *DB) GetLock(ctx context.Context, kind models.ResourceKind) (*models.ResourceLock, error) {
	lock := &models.ResourceLock{Kind: kind}
	err := db.Pool.QueryRow(ctx,
		"SELECT locked, locked_at FROM resource_locks WHERE kind = $1",
		kind).Scan(&lock.Locked, &lock.LockedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return lock, nil
}
