package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ycoin/marketsim/internal/book"
	"github.com/ycoin/marketsim/internal/config"
	"github.com/ycoin/marketsim/internal/dealer"
	"github.com/ycoin/marketsim/internal/exchange"
	"github.com/ycoin/marketsim/internal/ledger"
	"github.com/ycoin/marketsim/internal/models"
	"github.com/ycoin/marketsim/internal/price"
	"github.com/ycoin/marketsim/internal/tradelog"
)

// Store persists the whole simulator state as one unit after each
// mutating action. Implementations load whole state, the core mutates,
// then persists whole state.
type Store interface {
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
}

// Core owns every mutable component and serializes all access behind one
// exclusive critical section: each user-visible action runs to completion
// before any other touches the ledger, book or price state.
type Core struct {
	mu sync.Mutex

	cfg     config.Config
	users   map[string]*models.User
	ledger  *ledger.Ledger
	book    *book.Book
	prices  *price.State
	trades  *tradelog.Log
	dealer  *dealer.Engine
	matcher *exchange.Matcher

	nextOrderID int64

	store Store
}

// PlaceResult reports the outcome of an order placement: the assigned id,
// any trades executed by the matching pass that follows, and an advisory
// warning when the owner's balance looks short. The warning never blocks
// placement; the authoritative check happens at match time.
type PlaceResult struct {
	OrderID  int64
	Trades   []models.Trade
	Advisory string
}

// New creates a core with empty state. store may be nil for memory-only
// operation.
func New(cfg config.Config, store Store) *Core {
	l := ledger.New(cfg.Market.Epsilon)
	b := book.New(cfg.Market.Epsilon)
	p := price.New(cfg.Market.InitialPrice, cfg.Market.PriceFloor, cfg.Market.HistoryCap)
	t := tradelog.New()
	return &Core{
		cfg:         cfg,
		users:       make(map[string]*models.User),
		ledger:      l,
		book:        b,
		prices:      p,
		trades:      t,
		dealer:      dealer.New(cfg.Market.DealerFeeBPS, cfg.Market.DealerAlpha, l, p, t),
		matcher:     exchange.NewMatcher(cfg.Market.ExchangeFeeBPS, b, l, p, t),
		nextOrderID: 1,
		store:       store,
	}
}

// Register creates a user with the starting cash grant and zero coin.
func (c *Core) Register(username, passwordHash string) (models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if username == "" {
		return models.User{}, fmt.Errorf("register: %w", models.ErrInvalidInput)
	}
	if _, ok := c.users[username]; ok {
		return models.User{}, fmt.Errorf("register %s: %w", username, models.ErrUserExists)
	}
	u := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := c.ledger.CreateWallet(username, c.cfg.Market.StartingCash); err != nil {
		return models.User{}, err
	}
	c.users[username] = u
	c.persist()
	return *u, nil
}

// Lookup returns a registered user by name.
func (c *Core) Lookup(username string) (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[username]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

// Balance returns a user's wallet.
func (c *Core) Balance(username string) (cash, coin float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Balance(username)
}

// Portfolio returns a user's balances plus the coin position valued at
// the current reference price.
func (c *Core) Portfolio(username string) (cash, coin, coinValue, total float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cash, coin, err = c.ledger.Balance(username)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	coinValue = coin * c.prices.Current()
	return cash, coin, coinValue, cash + coinValue, nil
}

// DealerBuy executes an instant purchase at the dealer venue.
func (c *Core) DealerBuy(username string, qty float64) (models.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trade, err := c.dealer.Buy(username, qty, time.Now())
	if err != nil {
		return models.Trade{}, err
	}
	c.persist()
	return trade, nil
}

// DealerSell executes an instant sale at the dealer venue.
func (c *Core) DealerSell(username string, qty float64) (models.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trade, err := c.dealer.Sell(username, qty, time.Now())
	if err != nil {
		return models.Trade{}, err
	}
	c.persist()
	return trade, nil
}

// PlaceOrder puts a limit order on the book and immediately runs a
// matching pass. Placement itself never checks funds; an advisory
// warning is attached when the balance looks short at the limit price.
func (c *Core) PlaceOrder(username, side string, limitPrice, qty float64) (PlaceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limitPrice <= 0 || qty <= 0 {
		return PlaceResult{}, fmt.Errorf("place order: %w", models.ErrInvalidInput)
	}
	if !c.ledger.Has(username) {
		return PlaceResult{}, fmt.Errorf("place order: %w", models.ErrUnknownUser)
	}

	order := models.Order{
		ID:        c.nextOrderID,
		User:      username,
		Side:      side,
		Price:     limitPrice,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
	if err := c.book.Place(order); err != nil {
		return PlaceResult{}, err
	}
	c.nextOrderID++

	res := PlaceResult{OrderID: order.ID, Advisory: c.advisory(username, side, limitPrice, qty)}
	res.Trades = c.matcher.Run(time.Now())
	c.persist()
	return res, nil
}

// advisory estimates whether the owner can cover the order at its limit
// price. Estimate only: the match-time settlement is authoritative.
func (c *Core) advisory(username, side string, limitPrice, qty float64) string {
	cash, coin, err := c.ledger.Balance(username)
	if err != nil {
		return ""
	}
	switch side {
	case models.SideBuy:
		need := limitPrice * qty * (1 + float64(c.cfg.Market.ExchangeFeeBPS)/10000.0)
		if cash+c.cfg.Market.Epsilon < need {
			return "cash balance may not cover this order; the final check happens at match time"
		}
	case models.SideSell:
		if coin+c.cfg.Market.Epsilon < qty {
			return "coin balance may not cover this order; the final check happens at match time"
		}
	}
	return ""
}

// RunMatching runs a matching pass on demand and returns any trades.
func (c *Core) RunMatching() []models.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	trades := c.matcher.Run(time.Now())
	if len(trades) > 0 {
		c.persist()
	}
	return trades
}

// CancelOrder removes an open order owned by username.
func (c *Core) CancelOrder(username string, orderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.book.Get(orderID)
	if !ok || o.User != username {
		return fmt.Errorf("cancel order %d: %w", orderID, models.ErrOrderNotFound)
	}
	if err := c.book.Remove(orderID); err != nil {
		return err
	}
	c.persist()
	return nil
}

// ClearAll discards all trades and all open orders. Only the configured
// admin account may call it; wallets and price history are untouched.
func (c *Core) ClearAll(caller string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.cfg.Market.AdminUser {
		return fmt.Errorf("clear all: caller %s: %w", caller, models.ErrUnauthorized)
	}
	c.trades.Clear()
	c.book.Clear()
	c.persist()
	return nil
}

// OrderBook returns copies of both sides in priority order.
func (c *Core) OrderBook() (buys, sells []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.Orders()
}

// UserOrders returns the open orders owned by username.
func (c *Core) UserOrders(username string) []models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.UserOrders(username)
}

// Trades returns executed trades newest-first, optionally filtered by
// venue. limit <= 0 means no limit.
func (c *Core) Trades(venue string, limit int) []models.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trades.List(venue, limit)
}

// UserTrades returns trades username participated in, newest-first.
func (c *Core) UserTrades(username string, limit int) []models.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trades.ListUser(username, limit)
}

// CurrentPrice returns the reference price.
func (c *Core) CurrentPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prices.Current()
}

// PriceHistory returns the price series, oldest first.
func (c *Core) PriceHistory() []models.PricePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prices.History()
}

// SeedPriceHistory backfills the reference price series if it is empty.
func (c *Core) SeedPriceHistory(start time.Time, seed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices.Seed(start, time.Now(), seed)
	c.persist()
}

// Snapshot returns the whole state as one serializable unit.
func (c *Core) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Core) snapshotLocked() models.Snapshot {
	users := make([]models.User, 0, len(c.users))
	for _, u := range c.users {
		users = append(users, *u)
	}
	buys, sells := c.book.Orders()
	return models.Snapshot{
		Users:        users,
		Wallets:      c.ledger.Snapshot(),
		Orders:       append(buys, sells...),
		Trades:       c.trades.Snapshot(),
		PriceHistory: c.prices.History(),
		NextOrderID:  c.nextOrderID,
	}
}

// Restore replaces the whole state from a snapshot.
func (c *Core) Restore(snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.users = make(map[string]*models.User, len(snap.Users))
	for _, u := range snap.Users {
		cp := u
		c.users[u.Username] = &cp
	}
	c.ledger.Restore(snap.Wallets)
	c.book.Restore(snap.Orders)
	c.trades.Restore(snap.Trades)
	c.prices.Restore(snap.PriceHistory)
	c.nextOrderID = snap.NextOrderID
	if maxID := c.book.MaxID(); c.nextOrderID <= maxID {
		c.nextOrderID = maxID + 1
	}
	if c.nextOrderID < 1 {
		c.nextOrderID = 1
	}
}

// persist saves the current state through the store, if one is attached.
// A failed save is logged and does not fail the action; the in-memory
// state is authoritative for the simulation.
func (c *Core) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(context.Background(), c.snapshotLocked()); err != nil {
		slog.Warn("snapshot save failed", slog.Any("error", err))
	}
}
