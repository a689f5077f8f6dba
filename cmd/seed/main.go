package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ycoin/marketsim/internal/auth"
	"github.com/ycoin/marketsim/internal/config"
	"github.com/ycoin/marketsim/internal/db"
	"github.com/ycoin/marketsim/internal/engine"
	"github.com/ycoin/marketsim/internal/models"
)

// Seed the simulator with demo users and market activity.
func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}
	if cfg.Database.DSN == "" {
		log.Fatal("seeding requires database.dsn to be configured")
	}

	ctx := context.Background()
	store, err := db.NewStore(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(snap.Trades) > 0 {
		fmt.Printf("Database already has %d trades. No need to seed.\n", len(snap.Trades))
		os.Exit(0)
	}

	core := engine.New(cfg, store)
	core.Restore(snap)
	if start, err := cfg.HistoryStart(); err == nil {
		core.SeedPriceHistory(start, cfg.Market.HistorySeed)
	}

	authService := auth.NewService(core, cfg.Server.JWTSecret)
	for _, name := range []string{"trader1", "trader2", cfg.Market.AdminUser} {
		if _, ok := core.Lookup(name); ok {
			continue
		}
		if _, err := authService.Register(name, "password"); err != nil {
			log.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	// Dealer trades give trader2 coin inventory and move the reference
	// price, then a crossing pair of orders produces an exchange print.
	if _, err := core.DealerBuy("trader2", 3); err != nil {
		log.Fatalf("Failed dealer buy: %v", err)
	}
	p := core.CurrentPrice()

	if _, err := core.PlaceOrder("trader2", models.SideSell, p*0.98, 1); err != nil {
		log.Fatalf("Failed to place sell order: %v", err)
	}
	res, err := core.PlaceOrder("trader1", models.SideBuy, p*1.02, 1)
	if err != nil {
		log.Fatalf("Failed to place buy order: %v", err)
	}

	// Resting orders on both sides of the spread.
	if _, err := core.PlaceOrder("trader1", models.SideBuy, p*0.90, 2); err != nil {
		log.Fatalf("Failed to place resting buy: %v", err)
	}
	if _, err := core.PlaceOrder("trader2", models.SideSell, p*1.10, 1); err != nil {
		log.Fatalf("Failed to place resting sell: %v", err)
	}

	fmt.Printf("Seeded: %d exchange fills on first cross, reference price %.4f\n",
		len(res.Trades), core.CurrentPrice())
}
