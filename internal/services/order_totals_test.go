package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
	"github.com/ukisoft/ownplate/internal/repositories/memory"
)

func applyInTx(t *testing.T, store *memory.Store, update orderTotalsUpdate) {
	t.Helper()
	err := store.RunTransaction(context.Background(), func(_ context.Context, tx repositories.OrderTx) error {
		return applyOrderTotals(tx, update)
	})
	if err != nil {
		t.Fatalf("apply order totals: %v", err)
	}
}

func TestOrderTotalDateUsesRegionDay(t *testing.T) {
	late := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	if got := orderTotalDate(late, testTokyo); got != "20240302" {
		t.Fatalf("expected Tokyo day 20240302, got %s", got)
	}
	if got := orderTotalDate(late, nil); got != "20240301" {
		t.Fatalf("expected UTC day 20240301, got %s", got)
	}
}

func TestApplyOrderTotalsPlacementAndReversal(t *testing.T) {
	store := memory.NewStore()
	update := orderTotalsUpdate{
		CustomerUID:  "alice",
		RestaurantID: "r1",
		OwnerUID:     "owner",
		Items:        domain.LineQuantities{"curry": {2, 1}, "salad": {1}},
		PlacedAt:     testNow,
		Positive:     true,
		Location:     testTokyo,
	}
	applyInTx(t, store, update)
	applyInTx(t, store, update)

	curry, ok := store.OrderTotal("r1", "curry", testDate)
	if !ok || curry.Count != 6 {
		t.Fatalf("expected curry 6, got %+v", curry)
	}
	log, _ := store.CustomerLog("r1", "alice")
	if log.Counter != 2 || log.LastOrder == nil {
		t.Fatalf("unexpected log %+v", log)
	}

	update.Positive = false
	applyInTx(t, store, update)
	curry, _ = store.OrderTotal("r1", "curry", testDate)
	salad, _ := store.OrderTotal("r1", "salad", testDate)
	if curry.Count != 3 || salad.Count != 1 {
		t.Fatalf("unexpected counts after reversal curry=%d salad=%d", curry.Count, salad.Count)
	}
	log, _ = store.CustomerLog("r1", "alice")
	if log.Counter != 2 || log.CancelCounter != 1 {
		t.Fatalf("unexpected log after reversal %+v", log)
	}
}

func TestApplyOrderTotalsReversalOnEmptyDayCreatesCounter(t *testing.T) {
	store := memory.NewStore()
	applyInTx(t, store, orderTotalsUpdate{
		CustomerUID:  "bob",
		RestaurantID: "r1",
		OwnerUID:     "owner",
		Items:        domain.LineQuantities{"curry": {2}},
		PlacedAt:     testNow,
		Location:     testTokyo,
	})

	curry, ok := store.OrderTotal("r1", "curry", testDate)
	if !ok || curry.Count != 2 {
		t.Fatalf("expected a fresh counter seeded with the quantity, got %+v (found=%v)", curry, ok)
	}
	log, _ := store.CustomerLog("r1", "bob")
	if log.Counter != 0 || log.CancelCounter != 1 {
		t.Fatalf("unexpected log %+v", log)
	}
}

func TestReversalUpdatePrefersPlacementTime(t *testing.T) {
	pickup := testNow.Add(48 * time.Hour)
	stamped := testNow.Add(-time.Hour)
	order := domain.Order{RestaurantID: "r1", UID: "alice", TimePlaced: &pickup, OrderPlacedAt: &stamped}

	if got := reversalUpdate(order, "owner", testTokyo, testNow); !got.PlacedAt.Equal(pickup) || got.Positive {
		t.Fatalf("expected reversal at pickup time, got %+v", got)
	}
	order.TimePlaced = nil
	if got := reversalUpdate(order, "owner", testTokyo, testNow); !got.PlacedAt.Equal(stamped) {
		t.Fatalf("expected reversal at orderPlacedAt, got %v", got.PlacedAt)
	}
	order.OrderPlacedAt = nil
	if got := reversalUpdate(order, "owner", testTokyo, testNow); !got.PlacedAt.Equal(testNow) {
		t.Fatalf("expected reversal at now, got %v", got.PlacedAt)
	}
}
