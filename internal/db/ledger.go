package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// GetOrCreateAccount returns the account for a wallet, lazily initializing
// it with zero balances on first reference. Must run inside the caller's
// transaction.
func (db *DB) GetOrCreateAccount(ctx context.Context, tx pgx.Tx, wallet string) (*models.Account, error) {
	_, err := tx.Exec(ctx,
		"INSERT INTO accounts (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING",
		wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize account: %w", err)
	}
	return db.readAccount(ctx, tx, wallet)
}

// GetAccount reads an account outside any transaction, for display. Returns
// a zero-balance view if the wallet has never been referenced.
func (db *DB) GetAccount(ctx context.Context, wallet string) (*models.Account, error) {
	acct := &models.Account{Wallet: wallet, Resources: make(map[models.ResourceKind]int64)}
	err := db.Pool.QueryRow(ctx,
		"SELECT ufos, created_at FROM accounts WHERE wallet = $1",
		wallet).Scan(&acct.Ufos, &acct.CreatedAt)
	if err == pgx.ErrNoRows {
		return acct, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT kind, quantity FROM account_resources WHERE wallet = $1",
		wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get account resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind models.ResourceKind
		var qty int64
		if err := rows.Scan(&kind, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan account resource: %w", err)
		}
		acct.Resources[kind] = qty
	}
	return acct, rows.Err()
}

// ApplyDelta adjusts a wallet's spendable balances inside the caller's
// transaction. It fails with InsufficientBalanceError before writing if any
// resulting balance would go negative.
func (db *DB) ApplyDelta(ctx context.Context, tx pgx.Tx, wallet string, ufosDelta int64, resourceDeltas map[models.ResourceKind]int64) (*models.Account, error) {
	acct, err := db.GetOrCreateAccount(ctx, tx, wallet)
	if err != nil {
		return nil, err
	}

	if acct.Ufos+ufosDelta < 0 {
		return nil, &errs.InsufficientBalanceError{Wallet: wallet}
	}
	for kind, delta := range resourceDeltas {
		if acct.Resources[kind]+delta < 0 {
			return nil, &errs.InsufficientBalanceError{Wallet: wallet}
		}
	}

	if ufosDelta != 0 {
		_, err := tx.Exec(ctx,
			"UPDATE accounts SET ufos = ufos + $1 WHERE wallet = $2",
			ufosDelta, wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to apply currency delta: %w", err)
		}
		acct.Ufos += ufosDelta
	}

	for kind, delta := range resourceDeltas {
		if delta == 0 {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO account_resources (wallet, kind, quantity) VALUES ($1, $2, $3)
			 ON CONFLICT (wallet, kind) DO UPDATE SET quantity = account_resources.quantity + EXCLUDED.quantity`,
			wallet, kind, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to apply resource delta: %w", err)
		}
		acct.Resources[kind] += delta
	}

	return acct, nil
}

// readAccount loads an existing account and its resource holdings within a
// transaction.
func (db *DB) readAccount(ctx context.Context, tx pgx.Tx, wallet string) (*models.Account, error) {
	acct := &models.Account{Wallet: wallet, Resources: make(map[models.ResourceKind]int64)}
	err := tx.QueryRow(ctx,
		"SELECT ufos, created_at FROM accounts WHERE wallet = $1",
		wallet).Scan(&acct.Ufos, &acct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	rows, err := tx.Query(ctx,
		"SELECT kind, quantity FROM account_resources WHERE wallet = $1",
		wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get account resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind models.ResourceKind
		var qty int64
		if err := rows.Scan(&kind, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan account resource: %w", err)
		}
		acct.Resources[kind] = qty
	}
	return acct, rows.Err()
}
