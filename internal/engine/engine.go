package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/metrics"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// Engine executes marketplace commands. Every mutating operation acquires
// the per-resource lock, runs one serializable ledger transaction, and
// releases the lock whether the transaction committed or aborted. All
// authority lives in the ledger store; the engine keeps no state of its own.
type Engine struct {
	db  *db.DB
	log *zap.Logger
}

// New creates an engine over the ledger store.
func New(database *db.DB, log *zap.Logger) *Engine {
	return &Engine{db: database, log: log}
}

// SubmitResult reports the outcome of a submit: how much matched immediately
// and, if a remainder was rested in the book, its order id.
type SubmitResult struct {
	MatchedQuantity int64      `json:"matched_quantity"`
	RestingOrderID  *uuid.UUID `json:"resting_order_id,omitempty"`
}

// TradeResult reports the outcome of a direct trade against one resting
// order.
type TradeResult struct {
	TradedQuantity    int64 `json:"traded_quantity"`
	ConsiderationPaid int64 `json:"consideration_paid"`
}

// SubmitOrder places a limit order: the full value is escrowed up front,
// compatible resting orders are filled at their own prices in price-time
// priority, and any remainder rests in the book at the submitted price.
func (e *Engine) SubmitOrder(ctx context.Context, wallet string, kind models.ResourceKind, side models.Side, quantity, price int64) (*SubmitResult, error) {
	if !kind.Valid() {
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("unknown resource kind %q", kind)}
	}
	if !side.Valid() {
		return nil, &errs.ValidationError{Reason: fmt.Sprintf("side must be %q or %q", models.SideBuy, models.SideSell)}
	}
	if quantity <= 0 {
		return nil, &errs.ValidationError{Reason: "quantity must be positive"}
	}
	if price <= 0 {
		return nil, &errs.ValidationError{Reason: "price must be positive"}
	}
	// Every product computed for this order (escrow, fill consideration,
	// refunds, the cancel refund) is bounded by quantity*price, so rejecting
	// an overflowing total here keeps all downstream arithmetic in range.
	// Without it the escrow debit wraps negative and becomes a credit.
	if quantity > math.MaxInt64/price {
		return nil, &errs.ValidationError{Reason: "order value exceeds the representable maximum"}
	}

	if err := e.acquireLock(ctx, kind); err != nil {
		return nil, err
	}
	defer e.releaseLock(ctx, kind)

	orderID := uuid.New()
	var res SubmitResult
	var fillCount int
	var considerationTotal int64
	err := e.db.WithTx(ctx, func(tx pgx.Tx) error {
		res = SubmitResult{}
		fillCount, considerationTotal = 0, 0

		// Escrow the full submitted value before matching. Invariant: an
		// active order's remaining value is always held out of the
		// spendable balance.
		var ufosDelta int64
		resourceDeltas := make(map[models.ResourceKind]int64)
		if side == models.SideBuy {
			ufosDelta = -(quantity * price)
		} else {
			resourceDeltas[kind] = -quantity
		}

		before, err := e.db.GetOrCreateAccount(ctx, tx, wallet)
		if err != nil {
			return err
		}
		escrowed, err := e.db.ApplyDelta(ctx, tx, wallet, ufosDelta, resourceDeltas)
		if err != nil {
			return err
		}

		candidates, err := e.db.CompatibleRestingOrders(ctx, tx, kind, side, price)
		if err != nil {
			return err
		}

		fills, remaining := planFills(side, price, quantity, candidates)
		for _, f := range fills {
			// A buy escrowed at its own bid but executes at the maker price;
			// the per-unit difference goes straight back to the buyer.
			var refundPerUnit int64
			if side == models.SideBuy {
				refundPerUnit = price - f.Price
			}
			if _, err := e.executeFill(ctx, tx, wallet, &candidates[f.OrderIndex], f.Quantity, refundPerUnit); err != nil {
				return err
			}
			res.MatchedQuantity += f.Quantity
			fillCount++
			considerationTotal += f.Quantity * f.Price
		}

		if remaining > 0 {
			order := &models.Order{
				ID:        orderID,
				Wallet:    wallet,
				Kind:      kind,
				Side:      side,
				Remaining: remaining,
				Price:     price,
				Status:    models.OrderActive,
			}
			if err := e.db.InsertOrder(ctx, tx, order); err != nil {
				return err
			}
			entry := &models.MatchLogEntry{
				ID:            uuid.New(),
				OrderID:       orderID,
				Actor:         wallet,
				Action:        models.ActionCreate,
				Kind:          kind,
				Side:          side,
				Quantity:      remaining,
				Price:         price,
				Consideration: remaining * price,
				Buyer:         wallet,
				Seller:        wallet,
				BuyerBefore:   snapshotOf(before, kind),
				BuyerAfter:    snapshotOf(escrowed, kind),
				SellerBefore:  snapshotOf(before, kind),
				SellerAfter:   snapshotOf(escrowed, kind),
				Status:        models.OrderActive,
			}
			if err := e.db.AppendMatchLog(ctx, tx, entry); err != nil {
				return err
			}
			res.RestingOrderID = &orderID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues("submit", string(kind)).Inc()
	if fillCount > 0 {
		metrics.MatchesTotal.WithLabelValues(string(kind)).Add(float64(fillCount))
		metrics.TradeVolume.WithLabelValues(string(kind)).Add(float64(res.MatchedQuantity))
		metrics.TradeConsideration.WithLabelValues(string(kind)).Add(float64(considerationTotal))
	}
	e.log.Info("order submitted",
		zap.String("wallet", wallet),
		zap.String("kind", string(kind)),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity),
		zap.Int64("price", price),
		zap.Int64("matched", res.MatchedQuantity))
	return &res, nil
}

// TradeNow fills the taker directly against one named resting order, up to
// its full remaining quantity, at the resting order's price. Direct trades
// are not escrowed: the single transaction covers the whole transfer.
//
// If the taker cannot cover the full remaining quantity, the call fails with
// InsufficientBalanceError carrying the maximum satisfiable quantity; the
// caller acknowledges the clamp by re-issuing with confirmQuantity set. The
// engine never silently under-fills.
func (e *Engine) TradeNow(ctx context.Context, orderID uuid.UUID, taker string, confirmQuantity int64) (*TradeResult, error) {
	if confirmQuantity < 0 {
		return nil, &errs.ValidationError{Reason: "confirm quantity must not be negative"}
	}

	pre, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pre.Wallet == taker {
		return nil, &errs.ValidationError{Reason: "cannot trade against own order"}
	}

	if err := e.acquireLock(ctx, pre.Kind); err != nil {
		return nil, err
	}
	defer e.releaseLock(ctx, pre.Kind)

	var res TradeResult
	err = e.db.WithTx(ctx, func(tx pgx.Tx) error {
		res = TradeResult{}

		resting, err := e.db.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if resting.Status != models.OrderActive {
			return &errs.OrderNotActiveError{OrderID: orderID.String(), Status: string(resting.Status)}
		}

		takerAcct, err := e.db.GetOrCreateAccount(ctx, tx, taker)
		if err != nil {
			return err
		}

		var max int64
		if resting.Side == models.SideSell {
			max = takerAcct.Ufos / resting.Price
		} else {
			max = takerAcct.Resources[resting.Kind]
		}
		if max > resting.Remaining {
			max = resting.Remaining
		}

		qty := resting.Remaining
		if confirmQuantity > 0 {
			if confirmQuantity > resting.Remaining {
				return &errs.ValidationError{Reason: "confirmed quantity exceeds order remaining"}
			}
			if confirmQuantity > max {
				return &errs.InsufficientBalanceError{Wallet: taker, MaxQuantity: max}
			}
			qty = confirmQuantity
		} else if max < resting.Remaining {
			return &errs.InsufficientBalanceError{Wallet: taker, MaxQuantity: max}
		}

		// Debit the taker's leg directly from the spendable balance.
		if resting.Side == models.SideSell {
			_, err = e.db.ApplyDelta(ctx, tx, taker, -(qty * resting.Price), nil)
		} else {
			_, err = e.db.ApplyDelta(ctx, tx, taker, 0, map[models.ResourceKind]int64{resting.Kind: -qty})
		}
		if err != nil {
			return err
		}

		if _, err := e.executeFill(ctx, tx, taker, resting, qty, 0); err != nil {
			return err
		}
		res = TradeResult{TradedQuantity: qty, ConsiderationPaid: qty * resting.Price}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues("trade_now", string(pre.Kind)).Inc()
	metrics.MatchesTotal.WithLabelValues(string(pre.Kind)).Inc()
	metrics.TradeVolume.WithLabelValues(string(pre.Kind)).Add(float64(res.TradedQuantity))
	metrics.TradeConsideration.WithLabelValues(string(pre.Kind)).Add(float64(res.ConsiderationPaid))
	e.log.Info("direct trade executed",
		zap.String("taker", taker),
		zap.String("order_id", orderID.String()),
		zap.Int64("quantity", res.TradedQuantity),
		zap.Int64("consideration", res.ConsiderationPaid))
	return &res, nil
}

// CancelOrder refunds the escrowed remainder of an active order to its owner
// and marks the order cancelled.
func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID, wallet string) error {
	pre, err := e.db.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if err := e.acquireLock(ctx, pre.Kind); err != nil {
		return err
	}
	defer e.releaseLock(ctx, pre.Kind)

	err = e.db.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := e.db.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Wallet != wallet {
			return &errs.OwnershipError{OrderID: orderID.String(), Wallet: wallet}
		}
		if order.Status != models.OrderActive {
			return &errs.OrderNotActiveError{OrderID: orderID.String(), Status: string(order.Status)}
		}

		before, err := e.db.GetOrCreateAccount(ctx, tx, wallet)
		if err != nil {
			return err
		}

		// Refund the escrowed remainder.
		var after *models.Account
		if order.Side == models.SideBuy {
			after, err = e.db.ApplyDelta(ctx, tx, wallet, order.Remaining*order.Price, nil)
		} else {
			after, err = e.db.ApplyDelta(ctx, tx, wallet, 0, map[models.ResourceKind]int64{order.Kind: order.Remaining})
		}
		if err != nil {
			return err
		}

		if err := e.db.UpdateOrderRemaining(ctx, tx, order.ID, order.Remaining, models.OrderCancelled); err != nil {
			return err
		}

		entry := &models.MatchLogEntry{
			ID:            uuid.New(),
			OrderID:       order.ID,
			Actor:         wallet,
			Action:        models.ActionCancel,
			Kind:          order.Kind,
			Side:          order.Side,
			Quantity:      order.Remaining,
			Price:         order.Price,
			Consideration: order.Remaining * order.Price,
			Buyer:         wallet,
			Seller:        wallet,
			BuyerBefore:   snapshotOf(before, order.Kind),
			BuyerAfter:    snapshotOf(after, order.Kind),
			SellerBefore:  snapshotOf(before, order.Kind),
			SellerAfter:   snapshotOf(after, order.Kind),
			Status:        models.OrderCancelled,
		}
		return e.db.AppendMatchLog(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	metrics.OrdersTotal.WithLabelValues("cancel", string(pre.Kind)).Inc()
	e.log.Info("order cancelled",
		zap.String("wallet", wallet),
		zap.String("order_id", orderID.String()))
	return nil
}

// executeFill moves value for one fill inside the transaction: the buyer
// receives the resource units (plus any escrow surplus when a buy executes
// below its bid), the seller receives the consideration, the resting order's
// remaining quantity drops, and a match log entry captures both wallets'
// balances before and after. The giving legs were already debited, either as
// order escrow or by the trade-now direct debit.
func (e *Engine) executeFill(ctx context.Context, tx pgx.Tx, taker string, resting *models.Order, qty, refundPerUnit int64) (*models.MatchLogEntry, error) {
	makerPrice := resting.Price
	consideration := qty * makerPrice

	var buyer, seller string
	if resting.Side == models.SideSell {
		buyer, seller = taker, resting.Wallet
	} else {
		buyer, seller = resting.Wallet, taker
	}

	buyerBefore, err := e.db.GetOrCreateAccount(ctx, tx, buyer)
	if err != nil {
		return nil, err
	}
	sellerBefore, err := e.db.GetOrCreateAccount(ctx, tx, seller)
	if err != nil {
		return nil, err
	}

	buyerAfter, err := e.db.ApplyDelta(ctx, tx, buyer, qty*refundPerUnit,
		map[models.ResourceKind]int64{resting.Kind: qty})
	if err != nil {
		return nil, err
	}
	sellerAfter, err := e.db.ApplyDelta(ctx, tx, seller, consideration, nil)
	if err != nil {
		return nil, err
	}
	if buyer == seller {
		// Self-match through the book: the second delta saw both legs.
		buyerAfter = sellerAfter
	}

	newRemaining := resting.Remaining - qty
	status := models.OrderActive
	if newRemaining == 0 {
		status = models.OrderCompleted
	}
	if err := e.db.UpdateOrderRemaining(ctx, tx, resting.ID, newRemaining, status); err != nil {
		return nil, err
	}
	resting.Remaining = newRemaining
	resting.Status = status

	entry := &models.MatchLogEntry{
		ID:            uuid.New(),
		OrderID:       resting.ID,
		Actor:         taker,
		Action:        models.ActionMatch,
		Kind:          resting.Kind,
		Side:          resting.Side,
		Quantity:      qty,
		Price:         makerPrice,
		Consideration: consideration,
		Buyer:         buyer,
		Seller:        seller,
		BuyerBefore:   snapshotOf(buyerBefore, resting.Kind),
		BuyerAfter:    snapshotOf(buyerAfter, resting.Kind),
		SellerBefore:  snapshotOf(sellerBefore, resting.Kind),
		SellerAfter:   snapshotOf(sellerAfter, resting.Kind),
		Status:        status,
	}
	if err := e.db.AppendMatchLog(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// acquireLock takes the resource lock or fails fast with a retryable
// contention error.
func (e *Engine) acquireLock(ctx context.Context, kind models.ResourceKind) error {
	ok, err := e.db.AcquireLock(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to acquire resource lock: %w", err)
	}
	if !ok {
		metrics.LockContention.WithLabelValues(string(kind)).Inc()
		return &errs.LockContentionError{Kind: string(kind)}
	}
	return nil
}

// releaseLock frees the resource lock. A failed release is logged and left
// to the staleness threshold to reclaim.
func (e *Engine) releaseLock(ctx context.Context, kind models.ResourceKind) {
	if err := e.db.ReleaseLock(ctx, kind); err != nil {
		e.log.Warn("failed to release resource lock",
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// snapshotOf extracts the balances a match log records for one wallet.
func snapshotOf(acct *models.Account, kind models.ResourceKind) models.BalanceSnapshot {
	return models.BalanceSnapshot{Ufos: acct.Ufos, Resource: acct.Resources[kind]}
}
