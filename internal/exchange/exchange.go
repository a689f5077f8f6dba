package exchange

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ycoin/marketsim/internal/book"
	"github.com/ycoin/marketsim/internal/ledger"
	"github.com/ycoin/marketsim/internal/models"
	"github.com/ycoin/marketsim/internal/price"
	"github.com/ycoin/marketsim/internal/tradelog"
)

// Matcher is the continuous double-auction venue. It greedily pairs the
// best bid and best ask while they cross, settling each fill through the
// ledger at the midpoint of the two limit prices.
type Matcher struct {
	FeeBPS int

	book   *book.Book
	ledger *ledger.Ledger
	prices *price.State
	trades *tradelog.Log
}

// NewMatcher creates a matcher over the shared book, ledger, price state
// and trade log.
func NewMatcher(feeBPS int, b *book.Book, l *ledger.Ledger, p *price.State, t *tradelog.Log) *Matcher {
	return &Matcher{FeeBPS: feeBPS, book: b, ledger: l, prices: p, trades: t}
}

// Run repeatedly matches crossing orders until the spread no longer
// crosses or one side of the book is empty. An order whose owner cannot
// cover settlement is removed and matching continues with the next-best
// order on that side, so one bad order never blocks other liquidity.
// Returns the trades executed, oldest first.
func (m *Matcher) Run(now time.Time) []models.Trade {
	var executed []models.Trade
	for {
		bid, ok := m.book.BestBid()
		if !ok {
			break
		}
		ask, ok := m.book.BestAsk()
		if !ok {
			break
		}
		if bid.Price < ask.Price {
			break // no crossing spread
		}

		// Midpoint rule keeps both sides symmetric.
		tradePrice := (bid.Price + ask.Price) / 2.0
		tradeQty := bid.Quantity
		if ask.Quantity < tradeQty {
			tradeQty = ask.Quantity
		}
		cost := tradePrice * tradeQty
		feeBuy := cost * float64(m.FeeBPS) / 10000.0
		feeSell := cost * float64(m.FeeBPS) / 10000.0

		// Authoritative balance check. Placement never pre-checks funds,
		// so this is where an uncovered order surfaces.
		err := m.ledger.TrySettle(
			[]ledger.Entry{
				{User: bid.User, Denomination: models.DenomCash, Amount: cost + feeBuy},
				{User: ask.User, Denomination: models.DenomCoin, Amount: tradeQty},
			},
			[]ledger.Entry{
				{User: bid.User, Denomination: models.DenomCoin, Amount: tradeQty},
				{User: ask.User, Denomination: models.DenomCash, Amount: cost - feeSell},
			},
		)
		if err != nil {
			var ife *models.InsufficientFundsError
			if errors.As(err, &ife) {
				// Drop only the order that cannot pay, then retry with
				// the next-best order on that side.
				if ife.Denomination == models.DenomCash {
					_ = m.book.Remove(bid.ID)
				} else {
					_ = m.book.Remove(ask.ID)
				}
				continue
			}
			break // unknown user or similar; leave the book untouched
		}

		trade := models.Trade{
			ID:         uuid.NewString(),
			Venue:      models.VenueExchange,
			Buyer:      bid.User,
			Seller:     ask.User,
			Price:      tradePrice,
			Quantity:   tradeQty,
			FeeBPS:     m.FeeBPS,
			FeeBuyer:   feeBuy,
			FeeSeller:  feeSell,
			ExecutedAt: now,
		}
		m.trades.Append(trade)
		executed = append(executed, trade)

		_ = m.book.Reduce(bid.ID, tradeQty)
		_ = m.book.Reduce(ask.ID, tradeQty)

		// The exchange's last print becomes the new reference price.
		m.prices.Append(tradePrice, now)
	}
	return executed
}
