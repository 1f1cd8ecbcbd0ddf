package firestore

import (
	"errors"
	"testing"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

func TestDecodeOrderAcceptsScalarQuantitiesAndIndexedOptions(t *testing.T) {
	placed := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	order, err := decodeOrder("r1", "o1", fields{
		"uid":    "alice",
		"status": int64(300),
		"order": map[string]any{
			"curry": int64(2),
			"salad": []any{int64(1), float64(3)},
		},
		"rawOptions": map[string]any{
			"salad": map[string]any{"1": []any{int64(0), int64(2)}},
		},
		"total":      float64(1430),
		"number":     int64(42),
		"payment":    map[string]any{"stripe": "pending"},
		"timePlaced": placed,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != domain.OrderStatusOrderPlaced {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if got := order.Items["curry"]; len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected scalar quantity to become one line, got %v", got)
	}
	if got := order.Items["salad"]; len(got) != 2 || got[1] != 3 {
		t.Fatalf("unexpected salad lines %v", got)
	}
	lines := order.RawOptions["salad"]
	if len(lines) != 2 || lines[0] != nil || len(lines[1]) != 2 || lines[1][1] != 2 {
		t.Fatalf("unexpected option lines %v", lines)
	}
	if order.Payment.Stripe != domain.PaymentStatePending || order.Number != 42 || order.Total != 1430 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.TimePlaced == nil || !order.TimePlaced.Equal(placed) {
		t.Fatalf("unexpected timePlaced %v", order.TimePlaced)
	}
}

func TestDecodeOrderRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]fields{
		"missing uid":        {"status": int64(100)},
		"unknown status":     {"uid": "alice", "status": int64(500)},
		"fractional status":  {"uid": "alice", "status": 100.5},
		"string quantity":    {"uid": "alice", "status": int64(100), "order": map[string]any{"curry": "two"}},
		"unknown payment":    {"uid": "alice", "status": int64(100), "payment": map[string]any{"stripe": "refunded"}},
		"options not a list": {"uid": "alice", "status": int64(100), "rawOptions": map[string]any{"curry": "x"}},
		"bad timestamp":      {"uid": "alice", "status": int64(100), "timePlaced": "yesterday"},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeOrder("r1", "o1", data)
			if !errors.Is(err, repositories.ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestEncodeOrderRoundTripsLifecycleFields(t *testing.T) {
	at := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:            "o1",
		RestaurantID:  "r1",
		UID:           "alice",
		Status:        domain.OrderStatusOrderAccepted,
		Items:         domain.LineQuantities{"curry": {2}},
		RawOptions:    domain.OptionSelections{"curry": {{1}}},
		Prices:        map[string][]float64{"curry": {1000}},
		MenuItems:     map[string]domain.OrderMenuItem{"curry": {Price: 500, ItemName: "Curry"}},
		Accounting:    &domain.Accounting{Food: domain.CategoryAccounting{Revenue: 1000, Tax: 100}},
		Total:         1100,
		Payment:       domain.OrderPayment{Stripe: domain.PaymentStateConfirmed},
		TimeEstimated: &at,
	}

	doc := encodeOrder(order)
	if _, ok := doc["orderPlacedAt"]; ok {
		t.Fatalf("unset timestamps must not be written")
	}
	// Firestore hands back generic values; mimic that for the nested structures.
	doc["order"] = map[string]any{"curry": []any{float64(2)}}
	doc["rawOptions"] = map[string]any{"curry": map[string]any{"0": []any{int64(1)}}}
	doc["prices"] = map[string]any{"curry": []any{float64(1000)}}

	decoded, err := decodeOrder("r1", "o1", fields(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Status != order.Status || decoded.Payment != order.Payment || decoded.Total != order.Total {
		t.Fatalf("unexpected decoded order %+v", decoded)
	}
	if decoded.Accounting == nil || decoded.Accounting.Food.Tax != 100 {
		t.Fatalf("unexpected accounting %+v", decoded.Accounting)
	}
	if decoded.MenuItems["curry"].ItemName != "Curry" || decoded.RawOptions["curry"][0][0] != 1 {
		t.Fatalf("unexpected nested fields %+v", decoded)
	}
	if decoded.TimeEstimated == nil || !decoded.TimeEstimated.Equal(at) {
		t.Fatalf("unexpected timeEstimated %v", decoded.TimeEstimated)
	}
}

func TestDecodeMenuItemDefaultsTaxToFood(t *testing.T) {
	item, err := decodeMenuItem("beer", fields{"price": int64(600), "tax": "alcohol", "itemOptionCheckbox": []any{"Large (+100)"}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Tax != domain.TaxCategoryAlcohol || len(item.ItemOptionCheckbox) != 1 {
		t.Fatalf("unexpected item %+v", item)
	}
	item, err = decodeMenuItem("rice", fields{"price": int64(200)})
	if err != nil || item.Tax != domain.TaxCategoryFood {
		t.Fatalf("expected food default, got %+v (%v)", item, err)
	}
	if _, err := decodeMenuItem("bad", fields{"price": int64(-1)}); !errors.Is(err, repositories.ErrInvalidDocument) {
		t.Fatalf("expected negative price to be rejected, got %v", err)
	}
}

func TestDecodePaymentRecordRequiresIntent(t *testing.T) {
	record, err := decodePaymentRecord("r1", "o1", fields{"paymentIntent": map[string]any{"id": "pi_1", "status": "requires_capture"}})
	if err != nil || record.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected record %+v (%v)", record, err)
	}
	if _, err := decodePaymentRecord("r1", "o1", fields{}); !errors.Is(err, repositories.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}
