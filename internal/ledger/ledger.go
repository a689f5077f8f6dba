package ledger

import (
	"fmt"

	"github.com/ycoin/marketsim/internal/models"
)

// Entry is one leg of a settlement: an amount of one denomination
// debited from or credited to one user.
type Entry struct {
	User         string
	Denomination string // models.DenomCash or models.DenomCoin
	Amount       float64
}

// Ledger owns all wallets. Balances never go negative: a settlement whose
// debits would breach that is rejected whole, before any mutation.
type Ledger struct {
	wallets map[string]*models.Wallet
	epsilon float64
}

// New creates an empty ledger. epsilon is the tolerance applied to
// floating-point balance comparisons.
func New(epsilon float64) *Ledger {
	return &Ledger{
		wallets: make(map[string]*models.Wallet),
		epsilon: epsilon,
	}
}

// CreateWallet registers a wallet with the starting cash grant and zero coin.
func (l *Ledger) CreateWallet(user string, startingCash float64) error {
	if _, ok := l.wallets[user]; ok {
		return fmt.Errorf("wallet for %s: %w", user, models.ErrUserExists)
	}
	l.wallets[user] = &models.Wallet{Cash: startingCash, Coin: 0}
	return nil
}

// Has reports whether a wallet exists for user.
func (l *Ledger) Has(user string) bool {
	_, ok := l.wallets[user]
	return ok
}

// Balance returns the cash and coin balances for user.
func (l *Ledger) Balance(user string) (cash, coin float64, err error) {
	w, ok := l.wallets[user]
	if !ok {
		return 0, 0, fmt.Errorf("balance of %s: %w", user, models.ErrUnknownUser)
	}
	return w.Cash, w.Coin, nil
}

// TrySettle verifies every debit against the current balances before
// applying anything. If any debit would leave a negative balance the call
// returns an InsufficientFundsError naming the failing leg and nothing is
// mutated. On success all debits and credits apply as one unit.
func (l *Ledger) TrySettle(debits, credits []Entry) error {
	// Accumulate debits per (user, denomination) so two legs against the
	// same balance are checked jointly.
	type key struct{ user, denom string }
	totals := make(map[key]float64, len(debits))
	for _, d := range debits {
		if _, ok := l.wallets[d.User]; !ok {
			return fmt.Errorf("debit %s: %w", d.User, models.ErrUnknownUser)
		}
		totals[key{d.User, d.Denomination}] += d.Amount
	}
	for _, c := range credits {
		if _, ok := l.wallets[c.User]; !ok {
			return fmt.Errorf("credit %s: %w", c.User, models.ErrUnknownUser)
		}
	}

	for k, need := range totals {
		have := l.balanceOf(k.user, k.denom)
		if have+l.epsilon < need {
			return &models.InsufficientFundsError{
				User:         k.user,
				Denomination: k.denom,
				Need:         need,
				Have:         have,
			}
		}
	}

	for _, d := range debits {
		l.apply(d.User, d.Denomination, -d.Amount)
	}
	for _, c := range credits {
		l.apply(c.User, c.Denomination, c.Amount)
	}
	return nil
}

func (l *Ledger) balanceOf(user, denom string) float64 {
	w := l.wallets[user]
	if denom == models.DenomCoin {
		return w.Coin
	}
	return w.Cash
}

func (l *Ledger) apply(user, denom string, delta float64) {
	w := l.wallets[user]
	if denom == models.DenomCoin {
		w.Coin += delta
		if w.Coin < 0 {
			w.Coin = 0 // epsilon-tolerated debit rounded down to zero
		}
		return
	}
	w.Cash += delta
	if w.Cash < 0 {
		w.Cash = 0
	}
}

// Snapshot returns a copy of all wallets keyed by username.
func (l *Ledger) Snapshot() map[string]models.Wallet {
	out := make(map[string]models.Wallet, len(l.wallets))
	for u, w := range l.wallets {
		out[u] = *w
	}
	return out
}

// Restore replaces all wallets with the given snapshot.
func (l *Ledger) Restore(wallets map[string]models.Wallet) {
	l.wallets = make(map[string]*models.Wallet, len(wallets))
	for u, w := range wallets {
		cp := w
		l.wallets[u] = &cp
	}
}
