package price

import (
	"math/rand"
	"time"

	"github.com/ycoin/marketsim/internal/models"
)

// State holds the current reference price and a bounded, append-only
// history of price points. It is mutated only as a side effect of a
// committed trade or the initial history seeding.
type State struct {
	initial float64
	floor   float64
	cap     int
	history []models.PricePoint
}

// New creates a price state. initial is returned by Current until the
// first append; floor is the minimum positive price; cap bounds the
// history length (oldest entries evicted first).
func New(initial, floor float64, cap int) *State {
	return &State{initial: initial, floor: floor, cap: cap}
}

// Current returns the latest appended price, or the configured initial
// price if the history is empty.
func (s *State) Current() float64 {
	if len(s.history) == 0 {
		return s.initial
	}
	return s.history[len(s.history)-1].Price
}

// Append clamps p to the price floor and records it at ts.
func (s *State) Append(p float64, ts time.Time) {
	if p < s.floor {
		p = s.floor
	}
	s.history = append(s.history, models.PricePoint{Timestamp: ts, Price: p})
	if len(s.history) > s.cap {
		s.history = s.history[len(s.history)-s.cap:]
	}
}

// History returns a copy of the price series, oldest first.
func (s *State) History() []models.PricePoint {
	out := make([]models.PricePoint, len(s.history))
	copy(out, s.history)
	return out
}

// Restore replaces the history with the given series.
func (s *State) Restore(points []models.PricePoint) {
	s.history = append([]models.PricePoint(nil), points...)
	if len(s.history) > s.cap {
		s.history = s.history[len(s.history)-s.cap:]
	}
}

// Seed backfills the history with a reproducible random walk from start
// to now in six-hour steps, ending with an append at now. No-op if the
// history already has entries.
func (s *State) Seed(start, now time.Time, seed int64) {
	if len(s.history) > 0 {
		return
	}
	rng := rand.New(rand.NewSource(seed))
	p := s.initial
	for cur := start; !cur.After(now); cur = cur.Add(6 * time.Hour) {
		p += rng.Float64()*1.6 - 0.8
		if p < s.floor {
			p = s.floor
		}
		s.Append(p, cur)
	}
	s.Append(p, now)
}
