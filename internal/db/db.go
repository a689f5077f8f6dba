package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ycoin/marketsim/internal/models"
)

// Store persists the simulator state in PostgreSQL as one snapshot:
// every save replaces the previous state inside a single transaction, so
// a load always sees the state as of one atomic action.
type Store struct {
	Pool *pgxpool.Pool
}

// NewStore initializes a new database connection pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			cash          DOUBLE PRECISION NOT NULL,
			coin          DOUBLE PRECISION NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         BIGINT PRIMARY KEY,
			username   TEXT NOT NULL,
			side       TEXT NOT NULL,
			price      DOUBLE PRECISION NOT NULL,
			quantity   DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id          TEXT PRIMARY KEY,
			venue       TEXT NOT NULL,
			buyer       TEXT NOT NULL DEFAULT '',
			seller      TEXT NOT NULL DEFAULT '',
			price       DOUBLE PRECISION NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			fee_bps     INT NOT NULL,
			fee_buyer   DOUBLE PRECISION NOT NULL,
			fee_seller  DOUBLE PRECISION NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL,
			seq         BIGSERIAL
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			seq   BIGSERIAL PRIMARY KEY,
			ts    TIMESTAMPTZ NOT NULL,
			price DOUBLE PRECISION NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored state with snap in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE users, orders, trades, price_history"); err != nil {
		return fmt.Errorf("failed to truncate: %w", err)
	}

	for _, u := range snap.Users {
		w := snap.Wallets[u.Username]
		_, err := tx.Exec(ctx,
			"INSERT INTO users (username, password_hash, cash, coin, created_at) VALUES ($1, $2, $3, $4, $5)",
			u.Username, u.PasswordHash, w.Cash, w.Coin, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.Username, err)
		}
	}
	for _, o := range snap.Orders {
		_, err := tx.Exec(ctx,
			"INSERT INTO orders (id, username, side, price, quantity, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
			o.ID, o.User, o.Side, o.Price, o.Quantity, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save order %d: %w", o.ID, err)
		}
	}
	for _, t := range snap.Trades {
		_, err := tx.Exec(ctx,
			"INSERT INTO trades (id, venue, buyer, seller, price, quantity, fee_bps, fee_buyer, fee_seller, executed_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
			t.ID, t.Venue, t.Buyer, t.Seller, t.Price, t.Quantity, t.FeeBPS, t.FeeBuyer, t.FeeSeller, t.ExecutedAt)
		if err != nil {
			return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
		}
	}
	for _, p := range snap.PriceHistory {
		_, err := tx.Exec(ctx,
			"INSERT INTO price_history (ts, price) VALUES ($1, $2)", p.Timestamp, p.Price)
		if err != nil {
			return fmt.Errorf("failed to save price point: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot reads the whole stored state.
func (s *Store) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	snap := models.Snapshot{Wallets: make(map[string]models.Wallet), NextOrderID: 1}

	rows, err := s.Pool.Query(ctx, "SELECT username, password_hash, cash, coin, created_at FROM users")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load users: %w", err)
	}
	for rows.Next() {
		var u models.User
		var w models.Wallet
		if err := rows.Scan(&u.Username, &u.PasswordHash, &w.Cash, &w.Coin, &u.CreatedAt); err != nil {
			rows.Close()
			return models.Snapshot{}, fmt.Errorf("failed to scan user: %w", err)
		}
		snap.Users = append(snap.Users, u)
		snap.Wallets[u.Username] = w
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}

	rows, err = s.Pool.Query(ctx,
		"SELECT id, username, side, price, quantity, created_at FROM orders ORDER BY id ASC")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load orders: %w", err)
	}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.User, &o.Side, &o.Price, &o.Quantity, &o.CreatedAt); err != nil {
			rows.Close()
			return models.Snapshot{}, fmt.Errorf("failed to scan order: %w", err)
		}
		snap.Orders = append(snap.Orders, o)
		if o.ID >= snap.NextOrderID {
			snap.NextOrderID = o.ID + 1
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}

	rows, err = s.Pool.Query(ctx,
		"SELECT id, venue, buyer, seller, price, quantity, fee_bps, fee_buyer, fee_seller, executed_at FROM trades ORDER BY seq ASC")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load trades: %w", err)
	}
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.Venue, &t.Buyer, &t.Seller, &t.Price, &t.Quantity,
			&t.FeeBPS, &t.FeeBuyer, &t.FeeSeller, &t.ExecutedAt); err != nil {
			rows.Close()
			return models.Snapshot{}, fmt.Errorf("failed to scan trade: %w", err)
		}
		snap.Trades = append(snap.Trades, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}

	rows, err = s.Pool.Query(ctx, "SELECT ts, price FROM price_history ORDER BY seq ASC")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load price history: %w", err)
	}
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			rows.Close()
			return models.Snapshot{}, fmt.Errorf("failed to scan price point: %w", err)
		}
		snap.PriceHistory = append(snap.PriceHistory, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}

	return snap, nil
}
