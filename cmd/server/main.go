package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/api"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/auth"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/config"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/engine"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/logger"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/query"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type broadcaster struct {
	query *query.Service
	log   *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func newBroadcaster(q *query.Service, log *zap.Logger) *broadcaster {
	return &broadcaster{query: q, log: log, clients: make(map[*wsClient]bool)}
}

// broadcastBooks pushes a snapshot of every resource's book to all clients.
// Pure renderer: the snapshot is read from the query model, never from
// engine internals.
func (b *broadcaster) broadcastBooks(ctx context.Context) {
	books := make(map[models.ResourceKind]interface{}, len(models.Catalog))
	for _, kind := range models.Catalog {
		snap, err := b.query.ListActiveOrders(ctx, kind)
		if err != nil {
			b.log.Warn("failed to snapshot order book", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
		books[kind] = snap
	}
	data, err := json.Marshal(books)
	if err != nil {
		b.log.Warn("failed to marshal order books", zap.Error(err))
		return
	}

	b.mu.RLock()
	var dead []*wsClient
	for client := range b.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			dead = append(dead, client)
		}
	}
	b.mu.RUnlock()

	if len(dead) > 0 {
		b.mu.Lock()
		for _, client := range dead {
			delete(b.clients, client)
		}
		b.mu.Unlock()
	}
}

func (b *broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()

	b.broadcastBooks(r.Context())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.mu.Lock()
			delete(b.clients, client)
			b.mu.Unlock()
			break
		}
	}
}

// Main entry point: sets up the ledger store, engine, and HTTP server.
func main() {
	ctx := context.Background()
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(ctx)
	database.TxRetries = cfg.TxRetries
	database.LockStaleness = cfg.LockStaleness

	eng := engine.New(database, log)
	q := query.New(database)
	authService := auth.NewService(database, cfg.JWTSecret)
	handler := api.NewHandler(database, eng, q, authService, log)
	books := newBroadcaster(q, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(api.MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", books.handleWebSocket)

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders", handler.SubmitOrder)
		r.Get("/orders", handler.GetOrderBook)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Post("/orders/{id}/trade", handler.TradeNow)
		r.Get("/activity", handler.GetAccountActivity)
		r.Get("/prices/{kind}", handler.GetPrices)
		r.Get("/account", handler.GetAccount)
	})

	// Periodic order book broadcast
	stopBroadcast := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				books.broadcastBooks(ctx)
			case <-stopBroadcast:
				return
			}
		}
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		log.Info("starting server", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stopBroadcast)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
