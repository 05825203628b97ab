package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/config"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/engine"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/logger"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// Seed the database with demo wallets and a small resting book. Balances are
// credited through the ledger and orders are placed through the engine, so
// the seeded state satisfies the same escrow invariants as live traffic.
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

	var orderCount int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orderCount); err != nil {
		log.Fatal("failed to check orders", zap.Error(err))
	}
	if orderCount > 0 {
		fmt.Printf("Database already has %d orders. No need to seed.\n", orderCount)
		os.Exit(0)
	}

	wallets := []string{"demo-martian", "demo-venusian", "demo-plutonian"}
	err = database.WithTx(ctx, func(tx pgx.Tx) error {
		for _, wallet := range wallets {
			deltas := map[models.ResourceKind]int64{}
			for _, kind := range models.Catalog {
				deltas[kind] = 100
			}
			if _, err := database.ApplyDelta(ctx, tx, wallet, 10000, deltas); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("failed to credit demo wallets", zap.Error(err))
	}

	eng := engine.New(database, log)

	type seedOrder struct {
		wallet   string
		kind     models.ResourceKind
		side     models.Side
		quantity int64
		price    int64
	}
	orders := []seedOrder{
		{"demo-martian", models.KindIce, models.SideBuy, 10, 5},
		{"demo-martian", models.KindMineral, models.SideBuy, 5, 12},
		{"demo-venusian", models.KindIce, models.SideSell, 8, 7},
		{"demo-venusian", models.KindGas, models.SideSell, 20, 3},
		{"demo-plutonian", models.KindCrystal, models.SideSell, 4, 50},
		{"demo-plutonian", models.KindIce, models.SideBuy, 6, 4},
	}

	for _, o := range orders {
		res, err := eng.SubmitOrder(ctx, o.wallet, o.kind, o.side, o.quantity, o.price)
		if err != nil {
			log.Fatal("failed to seed order",
				zap.String("wallet", o.wallet),
				zap.String("kind", string(o.kind)),
				zap.Error(err))
		}
		fmt.Printf("seeded %s %s %d %s @ %d (matched %d)\n",
			o.wallet, o.side, o.quantity, o.kind, o.price, res.MatchedQuantity)
	}

	fmt.Println("Successfully seeded the database!")
}
