package tradelog

import (
	"testing"
	"time"

	"github.com/ycoin/marketsim/internal/models"
)

func sample() []models.Trade {
	now := time.Now()
	return []models.Trade{
		{ID: "t1", Venue: models.VenueDealer, Buyer: "a", Price: 100, Quantity: 1, FeeBuyer: 2, ExecutedAt: now},
		{ID: "t2", Venue: models.VenueExchange, Buyer: "a", Seller: "b", Price: 101, Quantity: 1, FeeBuyer: 0.5, FeeSeller: 0.5, ExecutedAt: now.Add(time.Second)},
		{ID: "t3", Venue: models.VenueDealer, Seller: "b", Price: 102, Quantity: 2, FeeSeller: 4, ExecutedAt: now.Add(2 * time.Second)},
	}
}

func TestLog_ListNewestFirst(t *testing.T) {
	l := New()
	for _, tr := range sample() {
		l.Append(tr)
	}

	all := l.List("", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(all))
	}
	if all[0].ID != "t3" || all[2].ID != "t1" {
		t.Errorf("expected newest-first order, got %s..%s", all[0].ID, all[2].ID)
	}

	dealer := l.List(models.VenueDealer, 0)
	if len(dealer) != 2 || dealer[0].ID != "t3" {
		t.Errorf("venue filter wrong: %+v", dealer)
	}

	limited := l.List("", 2)
	if len(limited) != 2 || limited[0].ID != "t3" {
		t.Errorf("limit wrong: %+v", limited)
	}
}

func TestLog_ListUser(t *testing.T) {
	l := New()
	for _, tr := range sample() {
		l.Append(tr)
	}

	b := l.ListUser("b", 0)
	if len(b) != 2 {
		t.Fatalf("expected 2 trades for b, got %d", len(b))
	}
	if b[0].ID != "t3" || b[1].ID != "t2" {
		t.Errorf("unexpected trades for b: %s, %s", b[0].ID, b[1].ID)
	}
}

func TestLog_FeesAndClear(t *testing.T) {
	l := New()
	for _, tr := range sample() {
		l.Append(tr)
	}

	if got := l.Fees(); got != 7 {
		t.Errorf("expected 7 total fees, got %g", got)
	}

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("expected empty log after clear, got %d", l.Len())
	}
}

func TestLog_SnapshotRestore(t *testing.T) {
	l := New()
	for _, tr := range sample() {
		l.Append(tr)
	}

	snap := l.Snapshot()
	l2 := New()
	l2.Restore(snap)
	if l2.Len() != 3 || l2.List("", 1)[0].ID != "t3" {
		t.Errorf("restore lost trades")
	}
}
