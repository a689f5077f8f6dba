package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ycoin/marketsim/internal/api"
	"github.com/ycoin/marketsim/internal/auth"
	"github.com/ycoin/marketsim/internal/config"
	"github.com/ycoin/marketsim/internal/db"
	"github.com/ycoin/marketsim/internal/engine"
	"github.com/ycoin/marketsim/internal/logging"
	"github.com/ycoin/marketsim/internal/models"
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

type marketFeed struct {
	clients   map[*wsClient]bool
	clientsMu sync.RWMutex
	core      *engine.Core
}

func newMarketFeed(core *engine.Core) *marketFeed {
	return &marketFeed{clients: make(map[*wsClient]bool), core: core}
}

func (f *marketFeed) broadcast() {
	buyOrders, sellOrders := f.core.OrderBook()
	payload := struct {
		Price      float64        `json:"price"`
		BuyOrders  []models.Order `json:"buy_orders"`
		SellOrders []models.Order `json:"sell_orders"`
		Trades     []models.Trade `json:"recent_trades"`
	}{
		Price:      f.core.CurrentPrice(),
		BuyOrders:  buyOrders,
		SellOrders: sellOrders,
		Trades:     f.core.Trades("", 20),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal market feed", slog.Any("error", err))
		return
	}

	var dead []*wsClient
	f.clientsMu.RLock()
	for client := range f.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			dead = append(dead, client)
		}
	}
	f.clientsMu.RUnlock()

	if len(dead) > 0 {
		f.clientsMu.Lock()
		for _, client := range dead {
			delete(f.clients, client)
		}
		f.clientsMu.Unlock()
	}
}

func (f *marketFeed) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := &wsClient{conn: conn}
	f.clientsMu.Lock()
	f.clients[client] = true
	f.clientsMu.Unlock()

	// Send initial market state
	f.broadcast()

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.clientsMu.Lock()
			delete(f.clients, client)
			f.clientsMu.Unlock()
			break
		}
	}
}

// Main entry point: loads config, restores state, and serves the API.
func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load config", slog.Any("error", err))
			os.Exit(1)
		}
		cfg = config.Default()
	}

	logger := logging.New(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()

	// Snapshot persistence is optional; without a DSN the simulator runs
	// memory-only.
	var store engine.Store
	var pgStore *db.Store
	if cfg.Database.DSN != "" {
		pgStore, err = db.NewStore(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure schema", slog.Any("error", err))
			os.Exit(1)
		}
		store = pgStore
	}

	core := engine.New(cfg, store)

	if pgStore != nil {
		snap, err := pgStore.LoadSnapshot(ctx)
		if err != nil {
			slog.Error("failed to load snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		core.Restore(snap)
		slog.Info("state restored",
			slog.Int("users", len(snap.Users)),
			slog.Int("orders", len(snap.Orders)),
			slog.Int("trades", len(snap.Trades)))
	}

	// Backfill the reference price series on first boot.
	if start, err := cfg.HistoryStart(); err == nil {
		core.SeedPriceHistory(start, cfg.Market.HistorySeed)
	}

	authService := auth.NewService(core, cfg.Server.JWTSecret)
	handler := api.NewHandler(core, authService)
	feed := newMarketFeed(core)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket market data feed
	r.Get("/ws", feed.handle)

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/orderbook", handler.GetOrderBook)
	r.Get("/price", handler.GetPriceHistory)
	r.Get("/trades", handler.GetTrades)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/wallet", handler.GetWallet)
		r.Post("/dealer/buy", handler.DealerBuy)
		r.Post("/dealer/sell", handler.DealerSell)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetUserOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Post("/matching", handler.RunMatching)
		r.Get("/trades/mine", handler.GetUserTrades)
		r.Delete("/admin/trades", handler.ClearAll)
	})

	// Periodic market data broadcast
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		for range ticker.C {
			feed.broadcast()
		}
	}()

	slog.Info("starting server", slog.String("addr", cfg.Server.Addr))
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
