package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/auth"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/engine"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/metrics"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/query"
)

type contextKey string

const walletKey contextKey = "wallet"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	DB     *db.DB
	Engine *engine.Engine
	Query  *query.Service
	Auth   *auth.Service
	Log    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(database *db.DB, eng *engine.Engine, q *query.Service, authSvc *auth.Service, log *zap.Logger) *Handler {
	return &Handler{DB: database, Engine: eng, Query: q, Auth: authSvc, Log: log}
}

// Register handles wallet registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet   string `json:"wallet"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.Auth.Register(r.Context(), req.Wallet, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"wallet": acct.Wallet,
	})
}

// Login handles wallet login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet   string `json:"wallet"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Wallet, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and stores the wallet id in the
// request context.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSONError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		wallet, err := h.Auth.WalletFromToken(tokenString)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), walletKey, wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware records request latency by route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

// SubmitOrder handles order placement and matching.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	wallet, ok := r.Context().Value(walletKey).(string)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Kind     models.ResourceKind `json:"kind"`
		Side     models.Side         `json:"side"`
		Quantity int64               `json:"quantity"`
		Price    int64               `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Engine.SubmitOrder(r.Context(), wallet, req.Kind, req.Side, req.Quantity, req.Price)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

// TradeNow fills the caller directly against one resting order. The optional
// confirm_quantity field acknowledges a clamped partial fill after a 402.
func (h *Handler) TradeNow(w http.ResponseWriter, r *http.Request) {
	wallet, ok := r.Context().Value(walletKey).(string)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		ConfirmQuantity int64 `json:"confirm_quantity"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, err := h.Engine.TradeNow(r.Context(), orderID, wallet, req.ConfirmQuantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(res)
}

// CancelOrder cancels an active order and refunds its escrowed remainder.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	wallet, ok := r.Context().Value(walletKey).(string)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Engine.CancelOrder(r.Context(), orderID, wallet); err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "order cancelled"})
}

// GetOrderBook returns the active book for a resource kind.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	kind := models.ResourceKind(r.URL.Query().Get("kind"))
	snap, err := h.Query.ListActiveOrders(r.Context(), kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(snap)
}

// GetAccountActivity returns the caller's match log feed, newest first.
func (h *Handler) GetAccountActivity(w http.ResponseWriter, r *http.Request) {
	wallet, ok := r.Context().Value(walletKey).(string)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entries, err := h.Query.AccountActivity(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.MatchLogEntry{}
	}
	json.NewEncoder(w).Encode(entries)
}

// GetPrices returns the best and average resting price for one side of a
// resource's book. Values are null when that side is empty.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	kind := models.ResourceKind(chi.URLParam(r, "kind"))
	side := models.Side(r.URL.Query().Get("side"))

	best, err := h.Query.BestPrice(r.Context(), kind, side)
	if err != nil {
		h.writeError(w, err)
		return
	}
	avg, err := h.Query.AveragePrice(r.Context(), kind, side)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"kind":    kind,
		"side":    side,
		"best":    best,
		"average": avg,
	})
}

// GetAccount returns the caller's spendable balances.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	wallet, ok := r.Context().Value(walletKey).(string)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acct, err := h.DB.GetAccount(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(acct)
}

// writeError maps the engine error taxonomy to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *errs.ValidationError
	var balanceErr *errs.InsufficientBalanceError
	var contentionErr *errs.LockContentionError
	var notFoundErr *errs.OrderNotFoundError
	var notActiveErr *errs.OrderNotActiveError
	var ownershipErr *errs.OwnershipError

	switch {
	case errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &balanceErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":        "insufficient balance",
			"max_quantity": balanceErr.MaxQuantity,
		})
	case errors.As(err, &ownershipErr):
		writeJSONError(w, http.StatusForbidden, "order not owned by requester")
	case errors.As(err, &notFoundErr):
		writeJSONError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &notActiveErr):
		writeJSONError(w, http.StatusConflict, "order is no longer active")
	case errors.As(err, &contentionErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     "resource is busy, retry shortly",
			"retryable": true,
		})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
