package models

import "time"

// Side of an order.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Venue identifies where a trade executed.
const (
	VenueDealer   = "dealer"
	VenueExchange = "exchange"
)

// Wallet denominations.
const (
	DenomCash = "cash"
	DenomCoin = "coin"
)

// User represents a registered user
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Wallet holds one user's balances. Mutated only through ledger settlement.
type Wallet struct {
	Cash float64 `json:"cash"` // settlement currency
	Coin float64 `json:"coin"` // traded asset
}

// Order represents an open limit order on the book
type Order struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Side      string    `json:"side"`       // "buy" or "sell"
	Price     float64   `json:"price"`      // limit price, cash per coin
	Quantity  float64   `json:"quantity"`   // quantity remaining
	CreatedAt time.Time `json:"created_at"` // Used for time priority
}

// Trade represents an executed trade from either venue.
// Buyer or Seller is empty when the dealer is the counterparty.
type Trade struct {
	ID         string    `json:"id"`
	Venue      string    `json:"venue"`
	Buyer      string    `json:"buyer,omitempty"`
	Seller     string    `json:"seller,omitempty"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	FeeBPS     int       `json:"fee_bps"`
	FeeBuyer   float64   `json:"fee_buyer"`
	FeeSeller  float64   `json:"fee_seller"`
	ExecutedAt time.Time `json:"executed_at"`
}

// PricePoint is one entry of the reference price history.
type PricePoint struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
}

// Snapshot is the whole simulator state as one serializable unit.
// It is the contract between the core and any storage backend:
// load whole state, mutate, persist whole state.
type Snapshot struct {
	Users        []User            `json:"users"`
	Wallets      map[string]Wallet `json:"wallets"`
	Orders       []Order           `json:"orders"`
	Trades       []Trade           `json:"trades"`
	PriceHistory []PricePoint      `json:"price_history"`
	NextOrderID  int64             `json:"next_order_id"`
}
