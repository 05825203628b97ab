package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceKind identifies one tradeable resource from the fixed catalog.
type ResourceKind string

const (
	KindIce     ResourceKind = "ice"
	KindWater   ResourceKind = "water"
	KindMineral ResourceKind = "mineral"
	KindGas     ResourceKind = "gas"
	KindCrystal ResourceKind = "crystal"
)

// Catalog is the full set of tradeable resource kinds.
var Catalog = []ResourceKind{KindIce, KindWater, KindMineral, KindGas, KindCrystal}

// Valid reports whether the kind belongs to the catalog.
func (k ResourceKind) Valid() bool {
	for _, c := range Catalog {
		if k == c {
			return true
		}
	}
	return false
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is "buy" or "sell".
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order. Completed and cancelled
// are terminal.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// LogAction labels the state transition a match log records.
type LogAction string

const (
	ActionCreate LogAction = "create"
	ActionMatch  LogAction = "match"
	ActionCancel LogAction = "cancel"
)

// Account holds the spendable balances of one wallet. Escrowed value lives
// in active orders, not here.
type Account struct {
	Wallet    string                 `json:"wallet"`
	Ufos      int64                  `json:"ufos"`
	Resources map[ResourceKind]int64 `json:"resources"`
	CreatedAt time.Time              `json:"created_at"`
}

// Order is a resting or terminal limit order. Only Remaining and Status
// ever change after creation.
type Order struct {
	ID        uuid.UUID    `json:"id"`
	Wallet    string       `json:"wallet"`
	Kind      ResourceKind `json:"kind"`
	Side      Side         `json:"side"`
	Remaining int64        `json:"remaining"`
	Price     int64        `json:"price"` // UFOS per unit, fixed at creation
	Status    OrderStatus  `json:"status"`
	CreatedAt time.Time    `json:"created_at"` // server-assigned, used for time priority
}

// BalanceSnapshot is one wallet's spendable balances at a point in time:
// UFOS plus the quantity of the resource kind the log entry concerns.
type BalanceSnapshot struct {
	Ufos     int64 `json:"ufos"`
	Resource int64 `json:"resource"`
}

// MatchLogEntry is the immutable record of one state transition. For match
// entries the buyer and seller differ; create and cancel entries record the
// owner on both legs.
type MatchLogEntry struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Actor         string          `json:"actor"`
	Action        LogAction       `json:"action"`
	Kind          ResourceKind    `json:"kind"`
	Side          Side            `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         int64           `json:"price"`
	Consideration int64           `json:"consideration"` // quantity * price
	Buyer         string          `json:"buyer"`
	Seller        string          `json:"seller"`
	BuyerBefore   BalanceSnapshot `json:"buyer_before"`
	BuyerAfter    BalanceSnapshot `json:"buyer_after"`
	SellerBefore  BalanceSnapshot `json:"seller_before"`
	SellerAfter   BalanceSnapshot `json:"seller_after"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ResourceLock is the per-kind mutual-exclusion record. Stale locks are
// overwritten, never deleted.
type ResourceLock struct {
	Kind     ResourceKind `json:"kind"`
	Locked   bool         `json:"locked"`
	LockedAt time.Time    `json:"locked_at"`
}
