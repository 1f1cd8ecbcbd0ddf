package domain

import (
	"testing"
	"time"
)

func TestOrderTransitionsCoverEveryStatus(t *testing.T) {
	for status := range orderStatusNames {
		if _, ok := orderTransitions[status]; !ok {
			t.Fatalf("status %s missing from transition table", status)
		}
	}
	for from, targets := range orderTransitions {
		if !from.Valid() {
			t.Fatalf("transition table has unknown source %d", int(from))
		}
		for _, to := range targets {
			if !to.Valid() {
				t.Fatalf("transition %s -> %d targets unknown status", from, int(to))
			}
			if to == from {
				t.Fatalf("self transition listed for %s", from)
			}
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusNewOrder, OrderStatusValidationOK, true},
		{OrderStatusNewOrder, OrderStatusOrderPlaced, false},
		{OrderStatusValidationOK, OrderStatusOrderPlaced, true},
		{OrderStatusOrderPlaced, OrderStatusOrderAccepted, true},
		{OrderStatusOrderPlaced, OrderStatusReadyToPickup, false},
		{OrderStatusOrderAccepted, OrderStatusOrderPlaced, true},
		{OrderStatusReadyToPickup, OrderStatusOrderCompleted, true},
		{OrderStatusOrderCompleted, OrderStatusOrderCanceled, false},
		{OrderStatusOrderCanceled, OrderStatusOrderPlaced, false},
		{OrderStatusError, OrderStatusValidationOK, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanOperatorTransitionStartsAtPlaced(t *testing.T) {
	for _, from := range OrderStatuses() {
		for _, to := range OrderStatuses() {
			got := CanOperatorTransition(from, to)
			if from < OrderStatusOrderPlaced && got {
				t.Fatalf("operator must not move %s -> %s", from, to)
			}
			if got && !CanTransition(from, to) {
				t.Fatalf("operator transition %s -> %s is outside the table", from, to)
			}
			if got && (to == OrderStatusValidationOK || to == OrderStatusError) {
				t.Fatalf("operator must not enter %s", to)
			}
		}
	}
	if !CanOperatorTransition(OrderStatusOrderAccepted, OrderStatusOrderPlaced) {
		t.Fatalf("expected operator to revert accepted to placed")
	}
	if !CanOperatorTransition(OrderStatusOrderPlaced, OrderStatusOrderAccepted) {
		t.Fatalf("expected operator to accept placed orders")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range OrderStatuses() {
		want := status == OrderStatusOrderCompleted || status == OrderStatusOrderCanceled || status == OrderStatusError
		if status.Terminal() != want {
			t.Fatalf("%s terminal = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	if status, ok := ParseOrderStatus("order_accepted"); !ok || status != OrderStatusOrderAccepted {
		t.Fatalf("expected order_accepted, got %v %v", status, ok)
	}
	if status, ok := ParseOrderStatus("600"); !ok || status != OrderStatusReadyToPickup {
		t.Fatalf("expected ready_to_pickup, got %v %v", status, ok)
	}
	if _, ok := ParseOrderStatus("500"); ok {
		t.Fatalf("expected unknown code to be rejected")
	}
	if _, ok := ParseOrderStatus("shipped"); ok {
		t.Fatalf("expected unknown name to be rejected")
	}
}

func TestStampStatusSetsMappedField(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var order Order
	order.StampStatus(OrderStatusReadyToPickup, now)
	if order.Status != OrderStatusReadyToPickup {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if order.ReadyToPickupAt == nil || !order.ReadyToPickupAt.Equal(now) {
		t.Fatalf("expected readyToPickupAt to be stamped")
	}
	if order.UpdatedAt == nil || !order.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt to be stamped")
	}
	if StatusTimestampField(OrderStatusReadyToPickup) != "readyToPickupAt" {
		t.Fatalf("unexpected field name")
	}
	if StatusTimestampField(OrderStatusValidationOK) != "" {
		t.Fatalf("validation_ok has no timestamp field")
	}
}
