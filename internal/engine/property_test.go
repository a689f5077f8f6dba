package engine

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/ycoin/marketsim/internal/config"
	"github.com/ycoin/marketsim/internal/models"
)

// Property: no reachable state holds a negative balance, and after any
// matching pass the book never stays crossed.
func TestProperty_BalancesNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := New(config.Default(), nil)

		nUsers := rapid.IntRange(1, 4).Draw(t, "users")
		users := make([]string, nUsers)
		for i := range users {
			users[i] = fmt.Sprintf("u%d", i)
			if _, err := c.Register(users[i], "hash"); err != nil {
				t.Fatalf("register: %v", err)
			}
		}

		nOps := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < nOps; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")
			qty := rapid.Float64Range(0.1, 5).Draw(t, "qty")
			price := rapid.Float64Range(50, 150).Draw(t, "price")

			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				c.DealerBuy(user, qty) // may fail on funds, fine
			case 1:
				c.DealerSell(user, qty)
			case 2:
				if _, err := c.PlaceOrder(user, models.SideBuy, price, qty); err != nil {
					t.Fatalf("place buy: %v", err)
				}
			case 3:
				if _, err := c.PlaceOrder(user, models.SideSell, price, qty); err != nil {
					t.Fatalf("place sell: %v", err)
				}
			case 4:
				c.RunMatching()
			}

			snap := c.Snapshot()
			for u, w := range snap.Wallets {
				if w.Cash < 0 || w.Coin < 0 {
					t.Fatalf("negative balance for %s: cash %g, coin %g", u, w.Cash, w.Coin)
				}
			}
		}

		// No-cross-without-fill after a final pass.
		c.RunMatching()
		buys, sells := c.OrderBook()
		if len(buys) > 0 && len(sells) > 0 && buys[0].Price >= sells[0].Price {
			t.Fatalf("book crossed after matching: bid %g >= ask %g", buys[0].Price, sells[0].Price)
		}
	})
}

// Property: cash only leaves the user population through fees and dealer
// trades, and the trade log accounts for every fee exactly once.
func TestProperty_CashConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := config.Default()
		c := New(cfg, nil)

		users := []string{"u0", "u1", "u2"}
		for _, u := range users {
			if _, err := c.Register(u, "hash"); err != nil {
				t.Fatalf("register: %v", err)
			}
		}
		startCash := cfg.Market.StartingCash * float64(len(users))

		nOps := rapid.IntRange(1, 30).Draw(t, "ops")
		for i := 0; i < nOps; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")
			qty := rapid.Float64Range(0.1, 3).Draw(t, "qty")
			price := rapid.Float64Range(80, 120).Draw(t, "price")

			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				c.DealerBuy(user, qty)
			case 1:
				c.DealerSell(user, qty)
			case 2:
				c.PlaceOrder(user, models.SideBuy, price, qty)
			case 3:
				c.PlaceOrder(user, models.SideSell, price, qty)
			}
		}
		c.RunMatching()

		snap := c.Snapshot()
		var endCash, fees, dealerFlow float64
		for _, w := range snap.Wallets {
			endCash += w.Cash
		}
		for _, tr := range snap.Trades {
			fees += tr.FeeBuyer + tr.FeeSeller
			if tr.Venue == models.VenueDealer {
				if tr.Buyer != "" {
					dealerFlow += tr.Price * tr.Quantity
				} else {
					dealerFlow -= tr.Price * tr.Quantity
				}
			}
		}

		diff := startCash - endCash - fees - dealerFlow
		if diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("cash leaked: start %g, end %g, fees %g, dealer flow %g, diff %g",
				startCash, endCash, fees, dealerFlow, diff)
		}
	})
}
