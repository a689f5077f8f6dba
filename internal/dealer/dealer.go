package dealer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ycoin/marketsim/internal/ledger"
	"github.com/ycoin/marketsim/internal/models"
	"github.com/ycoin/marketsim/internal/price"
	"github.com/ycoin/marketsim/internal/tradelog"
)

// Engine is the instant-execution venue. It always fills at the current
// reference price, charges a bps fee, and applies a linear price impact
// of Alpha per unit traded after each fill.
type Engine struct {
	FeeBPS int
	Alpha  float64

	ledger *ledger.Ledger
	prices *price.State
	trades *tradelog.Log
}

// New creates a dealer engine over the shared ledger, price state and
// trade log.
func New(feeBPS int, alpha float64, l *ledger.Ledger, p *price.State, t *tradelog.Log) *Engine {
	return &Engine{FeeBPS: feeBPS, Alpha: alpha, ledger: l, prices: p, trades: t}
}

// Buy fills a purchase of qty coin for user at the current reference
// price plus fee. On success the reference price moves up by Alpha*qty.
func (e *Engine) Buy(user string, qty float64, now time.Time) (models.Trade, error) {
	if qty <= 0 {
		return models.Trade{}, fmt.Errorf("dealer buy: %w", models.ErrInvalidInput)
	}
	p := e.prices.Current()
	cost := p * qty
	fee := cost * float64(e.FeeBPS) / 10000.0

	err := e.ledger.TrySettle(
		[]ledger.Entry{{User: user, Denomination: models.DenomCash, Amount: cost + fee}},
		[]ledger.Entry{{User: user, Denomination: models.DenomCoin, Amount: qty}},
	)
	if err != nil {
		return models.Trade{}, fmt.Errorf("dealer buy: %w", err)
	}

	trade := models.Trade{
		ID:         uuid.NewString(),
		Venue:      models.VenueDealer,
		Buyer:      user,
		Price:      p,
		Quantity:   qty,
		FeeBPS:     e.FeeBPS,
		FeeBuyer:   fee,
		ExecutedAt: now,
	}
	e.trades.Append(trade)
	e.prices.Append(p+e.Alpha*qty, now)
	return trade, nil
}

// Sell fills a sale of qty coin for user at the current reference price,
// crediting proceeds minus fee. On success the reference price moves down
// by Alpha*qty, clamped at the price floor.
func (e *Engine) Sell(user string, qty float64, now time.Time) (models.Trade, error) {
	if qty <= 0 {
		return models.Trade{}, fmt.Errorf("dealer sell: %w", models.ErrInvalidInput)
	}
	p := e.prices.Current()
	proceeds := p * qty
	fee := proceeds * float64(e.FeeBPS) / 10000.0

	err := e.ledger.TrySettle(
		[]ledger.Entry{{User: user, Denomination: models.DenomCoin, Amount: qty}},
		[]ledger.Entry{{User: user, Denomination: models.DenomCash, Amount: proceeds - fee}},
	)
	if err != nil {
		return models.Trade{}, fmt.Errorf("dealer sell: %w", err)
	}

	trade := models.Trade{
		ID:         uuid.NewString(),
		Venue:      models.VenueDealer,
		Seller:     user,
		Price:      p,
		Quantity:   qty,
		FeeBPS:     e.FeeBPS,
		FeeSeller:  fee,
		ExecutedAt: now,
	}
	e.trades.Append(trade)
	e.prices.Append(p-e.Alpha*qty, now)
	return trade, nil
}
