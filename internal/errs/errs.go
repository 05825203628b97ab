// Package errs defines the error taxonomy of the marketplace engine.
// Callers classify failures with errors.As; everything else is an internal
// error and surfaces as such.
package errs

import "fmt"

// ValidationError rejects malformed input: non-positive quantity or price,
// unknown resource kind, self-trade. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// InsufficientBalanceError means an escrow debit or direct transfer would
// drive a balance negative. MaxQuantity carries the largest quantity the
// wallet could still cover, so a trade-now caller can confirm a clamped
// retry explicitly.
type InsufficientBalanceError struct {
	Wallet      string
	MaxQuantity int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for wallet %s (max satisfiable quantity %d)", e.Wallet, e.MaxQuantity)
}

// LockContentionError means the per-resource lock was held by another
// operation. Transient; safe to retry with backoff.
type LockContentionError struct {
	Kind string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("resource %s is locked by another operation", e.Kind)
}

// OrderNotFoundError means no order exists under the given id.
type OrderNotFoundError struct {
	OrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// OrderNotActiveError means the order was already completed or cancelled,
// possibly by a concurrent actor.
type OrderNotActiveError struct {
	OrderID string
	Status  string
}

func (e *OrderNotActiveError) Error() string {
	return fmt.Sprintf("order %s is not active (status %s)", e.OrderID, e.Status)
}

// OwnershipError means the requester does not own the order. Fatal for the
// request.
type OwnershipError struct {
	OrderID string
	Wallet  string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("order %s is not owned by wallet %s", e.OrderID, e.Wallet)
}
