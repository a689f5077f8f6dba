package book

import (
	"fmt"
	"sort"

	"github.com/ycoin/marketsim/internal/models"
)

// Book holds the open limit orders for both sides, kept in price-time
// priority order. Quantities are reduced only by the matching engine.
type Book struct {
	buys    []models.Order
	sells   []models.Order
	epsilon float64
}

// New creates an empty order book. epsilon is the dust threshold below
// which a remaining quantity counts as filled.
func New(epsilon float64) *Book {
	return &Book{epsilon: epsilon}
}

// Place validates and inserts an order, keeping its side sorted.
func (b *Book) Place(order models.Order) error {
	if order.Price <= 0 || order.Quantity <= 0 {
		return fmt.Errorf("place order: %w", models.ErrInvalidInput)
	}
	switch order.Side {
	case models.SideBuy:
		b.buys = append(b.buys, order)
		// Sort buy orders: highest price first, then earliest time
		sort.Slice(b.buys, func(i, j int) bool {
			if b.buys[i].Price == b.buys[j].Price {
				return b.buys[i].CreatedAt.Before(b.buys[j].CreatedAt)
			}
			return b.buys[i].Price > b.buys[j].Price
		})
	case models.SideSell:
		b.sells = append(b.sells, order)
		// Sort sell orders: lowest price first, then earliest time
		sort.Slice(b.sells, func(i, j int) bool {
			if b.sells[i].Price == b.sells[j].Price {
				return b.sells[i].CreatedAt.Before(b.sells[j].CreatedAt)
			}
			return b.sells[i].Price < b.sells[j].Price
		})
	default:
		return fmt.Errorf("place order: side %q: %w", order.Side, models.ErrInvalidInput)
	}
	return nil
}

// BestBid returns the highest-priced buy order, earliest first on ties.
func (b *Book) BestBid() (models.Order, bool) {
	if len(b.buys) == 0 {
		return models.Order{}, false
	}
	return b.buys[0], true
}

// BestAsk returns the lowest-priced sell order, earliest first on ties.
func (b *Book) BestAsk() (models.Order, bool) {
	if len(b.sells) == 0 {
		return models.Order{}, false
	}
	return b.sells[0], true
}

// Reduce decreases an order's remaining quantity by filled. Orders whose
// remainder falls within the dust threshold are removed from the book.
func (b *Book) Reduce(orderID int64, filled float64) error {
	for _, side := range []*[]models.Order{&b.buys, &b.sells} {
		for i := range *side {
			if (*side)[i].ID != orderID {
				continue
			}
			(*side)[i].Quantity -= filled
			if (*side)[i].Quantity <= b.epsilon {
				*side = append((*side)[:i], (*side)[i+1:]...)
			}
			return nil
		}
	}
	return fmt.Errorf("reduce order %d: %w", orderID, models.ErrOrderNotFound)
}

// Remove deletes an order outright, used when its owner cannot cover
// settlement or on user cancel.
func (b *Book) Remove(orderID int64) error {
	for _, side := range []*[]models.Order{&b.buys, &b.sells} {
		for i := range *side {
			if (*side)[i].ID == orderID {
				*side = append((*side)[:i], (*side)[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("remove order %d: %w", orderID, models.ErrOrderNotFound)
}

// Get returns a copy of the order with the given id.
func (b *Book) Get(orderID int64) (models.Order, bool) {
	for _, side := range [][]models.Order{b.buys, b.sells} {
		for _, o := range side {
			if o.ID == orderID {
				return o, true
			}
		}
	}
	return models.Order{}, false
}

// Orders returns copies of the buy and sell sides in priority order.
func (b *Book) Orders() (buys, sells []models.Order) {
	buys = append([]models.Order(nil), b.buys...)
	sells = append([]models.Order(nil), b.sells...)
	return buys, sells
}

// UserOrders returns all open orders owned by user, both sides.
func (b *Book) UserOrders(user string) []models.Order {
	var out []models.Order
	for _, side := range [][]models.Order{b.buys, b.sells} {
		for _, o := range side {
			if o.User == user {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear discards every open order.
func (b *Book) Clear() {
	b.buys = nil
	b.sells = nil
}

// Restore replaces the book contents with the given orders.
func (b *Book) Restore(orders []models.Order) {
	b.buys = nil
	b.sells = nil
	for _, o := range orders {
		if o.Quantity <= b.epsilon {
			continue
		}
		_ = b.Place(o)
	}
}

// MaxID returns the highest order id currently on the book.
func (b *Book) MaxID() int64 {
	var max int64
	for _, side := range [][]models.Order{b.buys, b.sells} {
		for _, o := range side {
			if o.ID > max {
				max = o.ID
			}
		}
	}
	return max
}
