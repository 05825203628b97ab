// Package query derives display views from the ledger store: the active
// book, best and average prices, and per-account activity. It only ever
// reads; all authority stays behind the engine.
package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// Service answers read-model queries.
type Service struct {
	db *db.DB
}

// New creates a query service over the ledger store.
func New(database *db.DB) *Service {
	return &Service{db: database}
}

// BookSnapshot is the renderable view of one resource's order book.
type BookSnapshot struct {
	Kind       models.ResourceKind `json:"kind"`
	BuyOrders  []models.Order      `json:"buy_orders"`
	SellOrders []models.Order      `json:"sell_orders"`
}

// ListActiveOrders returns all active orders for a resource kind, each side
// in price-time priority.
func (s *Service) ListActiveOrders(ctx context.Context, kind models.ResourceKind) (*BookSnapshot, error) {
	if !kind.Valid() {
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("unknown resource kind %q", kind)}
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, wallet, kind, side, remaining, price, status, created_at
		 FROM orders
		 WHERE kind = $1 AND status = 'active'
		 ORDER BY CASE WHEN side = 'buy' THEN -price ELSE price END ASC, created_at ASC`,
		kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get active orders: %w", err)
	}
	defer rows.Close()

	snap := &BookSnapshot{Kind: kind, BuyOrders: []models.Order{}, SellOrders: []models.Order{}}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.Wallet, &order.Kind, &order.Side,
			&order.Remaining, &order.Price, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if order.Side == models.SideBuy {
			snap.BuyOrders = append(snap.BuyOrders, order)
		} else {
			snap.SellOrders = append(snap.SellOrders, order)
		}
	}
	return snap, rows.Err()
}

// BestPrice returns the lowest active sell price or highest active buy price
// for a resource kind, or nil when that side of the book is empty.
func (s *Service) BestPrice(ctx context.Context, kind models.ResourceKind, side models.Side) (*int64, error) {
	if !kind.Valid() {
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("unknown resource kind %q", kind)}
	}
	if !side.Valid() {
		return nil, &errs.ValidationError{Reason: "side must be buy or sell"}
	}

	agg := "MIN(price)"
	if side == models.SideBuy {
		agg = "MAX(price)"
	}
	var best *int64
	err := s.db.Pool.QueryRow(ctx,
		"SELECT "+agg+" FROM orders WHERE kind = $1 AND side = $2 AND status = 'active'",
		kind, side).Scan(&best)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get best price: %w", err)
	}
	return best, nil
}

// AveragePrice returns the arithmetic mean of active resting prices on one
// side of the book, or nil when that side is empty.
func (s *Service) AveragePrice(ctx context.Context, kind models.ResourceKind, side models.Side) (*float64, error) {
	if !kind.Valid() {
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("unknown resource kind %q", kind)}
	}
	if !side.Valid() {
		return nil, &errs.ValidationError{Reason: "side must be buy or sell"}
	}

	var avg *float64
	err := s.db.Pool.QueryRow(ctx,
		"SELECT AVG(price)::float8 FROM orders WHERE kind = $1 AND side = $2 AND status = 'active'",
		kind, side).Scan(&avg)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get average price: %w", err)
	}
	return avg, nil
}

// AccountActivity returns every match log entry where the wallet appears as
// buyer or seller, newest first.
func (s *Service) AccountActivity(ctx context.Context, wallet string) ([]models.MatchLogEntry, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, order_id, actor, action, kind, side, quantity, price, consideration,
			buyer, seller,
			buyer_ufos_before, buyer_ufos_after, buyer_resource_before, buyer_resource_after,
			seller_ufos_before, seller_ufos_after, seller_resource_before, seller_resource_after,
			status, created_at
		 FROM match_logs
		 WHERE buyer = $1 OR seller = $1
		 ORDER BY created_at DESC`,
		wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get account activity: %w", err)
	}
	defer rows.Close()

	var entries []models.MatchLogEntry
	for rows.Next() {
		var e models.MatchLogEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Actor, &e.Action, &e.Kind, &e.Side,
			&e.Quantity, &e.Price, &e.Consideration,
			&e.Buyer, &e.Seller,
			&e.BuyerBefore.Ufos, &e.BuyerAfter.Ufos, &e.BuyerBefore.Resource, &e.BuyerAfter.Resource,
			&e.SellerBefore.Ufos, &e.SellerAfter.Ufos, &e.SellerBefore.Resource, &e.SellerAfter.Resource,
			&e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
