package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// AppendMatchLog writes one immutable audit entry inside the caller's
// transaction. This is the only statement that ever touches match_logs from
// the write side; entries are never read back for modification.
func (db *DB) AppendMatchLog(ctx context.Context, tx pgx.Tx, entry *models.MatchLogEntry) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO match_logs (
			id, order_id, actor, action, kind, side, quantity, price, consideration,
			buyer, seller,
			buyer_ufos_before, buyer_ufos_after, buyer_resource_before, buyer_resource_after,
			seller_ufos_before, seller_ufos_after, seller_resource_before, seller_resource_after,
			status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at`,
		entry.ID, entry.OrderID, entry.Actor, entry.Action, entry.Kind, entry.Side,
		entry.Quantity, entry.Price, entry.Consideration,
		entry.Buyer, entry.Seller,
		entry.BuyerBefore.Ufos, entry.BuyerAfter.Ufos, entry.BuyerBefore.Resource, entry.BuyerAfter.Resource,
		entry.SellerBefore.Ufos, entry.SellerAfter.Ufos, entry.SellerBefore.Resource, entry.SellerAfter.Resource,
		entry.Status).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append match log: %w", err)
	}
	return nil
}
