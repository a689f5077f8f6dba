package tradelog

import "github.com/ycoin/marketsim/internal/models"

// Log is the append-only record of executed trades from both venues.
// Entries are never mutated; only the privileged bulk clear discards them.
type Log struct {
	trades []models.Trade
}

// New creates an empty trade log.
func New() *Log {
	return &Log{}
}

// Append records a trade.
func (l *Log) Append(t models.Trade) {
	l.trades = append(l.trades, t)
}

// List returns trades newest-first, optionally filtered by venue.
// limit <= 0 means no limit.
func (l *Log) List(venue string, limit int) []models.Trade {
	var out []models.Trade
	for i := len(l.trades) - 1; i >= 0; i-- {
		t := l.trades[i]
		if venue != "" && t.Venue != venue {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ListUser returns trades where user participated on either side,
// newest-first.
func (l *Log) ListUser(user string, limit int) []models.Trade {
	var out []models.Trade
	for i := len(l.trades) - 1; i >= 0; i-- {
		t := l.trades[i]
		if t.Buyer != user && t.Seller != user {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Fees returns the sum of all buyer and seller fees recorded.
func (l *Log) Fees() float64 {
	var sum float64
	for _, t := range l.trades {
		sum += t.FeeBuyer + t.FeeSeller
	}
	return sum
}

// Len returns the number of recorded trades.
func (l *Log) Len() int {
	return len(l.trades)
}

// Clear discards every trade. Privileged callers only; the engine gates it.
func (l *Log) Clear() {
	l.trades = nil
}

// Snapshot returns a copy of all trades, oldest first.
func (l *Log) Snapshot() []models.Trade {
	return append([]models.Trade(nil), l.trades...)
}

// Restore replaces the log contents.
func (l *Log) Restore(trades []models.Trade) {
	l.trades = append([]models.Trade(nil), trades...)
}
