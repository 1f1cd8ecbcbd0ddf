package services

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

func twoItemMenu() map[string]domain.MenuItem {
	return map[string]domain.MenuItem{
		"curry": {ID: "curry", ItemName: "Curry", Price: 500, Tax: domain.TaxCategoryFood},
		"salad": {ID: "salad", ItemName: "Salad", Price: 300, Tax: domain.TaxCategoryFood},
	}
}

func TestPriceOrderExclusiveTaxScenario(t *testing.T) {
	priced, err := PriceOrder(domain.LineQuantities{"curry": {2}, "salad": {1}}, nil, twoItemMenu(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if priced.Subtotals.Food != 1300 {
		t.Fatalf("expected food subtotal 1300, got %v", priced.Subtotals.Food)
	}
	totals, err := ComputeOrderTotals(priced.Subtotals, domain.TaxConfig{FoodTax: 10}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Accounting.Food.Tax != 130 {
		t.Fatalf("expected food tax 130, got %v", totals.Accounting.Food.Tax)
	}
	if totals.Total != 1430 {
		t.Fatalf("expected total 1430, got %v", totals.Total)
	}
	if totals.Accounting.Food.Revenue != 1300 {
		t.Fatalf("expected revenue 1300, got %v", totals.Accounting.Food.Revenue)
	}
}

func TestComputeOrderTotalsInclusiveTaxScenario(t *testing.T) {
	subtotals := domain.CategorySubtotals{Food: 1300}
	tax := domain.TaxConfig{InclusiveTax: true, FoodTax: 10}

	cents, err := ComputeOrderTotals(subtotals, tax, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cents.Accounting.Food.Tax != 118.18 {
		t.Fatalf("expected 118.18 at multiple 100, got %v", cents.Accounting.Food.Tax)
	}
	if cents.Total != 1300 {
		t.Fatalf("expected total 1300, got %v", cents.Total)
	}

	yen, err := ComputeOrderTotals(subtotals, tax, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if yen.Accounting.Food.Tax != 118 {
		t.Fatalf("expected 118 at multiple 1, got %v", yen.Accounting.Food.Tax)
	}
	if yen.Accounting.Food.Revenue != 1182 {
		t.Fatalf("expected revenue 1182, got %v", yen.Accounting.Food.Revenue)
	}
	if yen.Total != yen.SubTotal {
		t.Fatalf("inclusive total must equal subtotal")
	}
}

func TestComputeOrderTotalsSplitsAlcohol(t *testing.T) {
	totals, err := ComputeOrderTotals(domain.CategorySubtotals{Food: 1000, Alcohol: 500}, domain.TaxConfig{FoodTax: 8, AlcoholTax: 10}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Accounting.Food.Tax != 80 || totals.Accounting.Alcohol.Tax != 50 {
		t.Fatalf("unexpected category taxes: %+v", totals.Accounting)
	}
	if totals.Tax != 130 || totals.Total != 1630 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestComputeOrderTotalsRejectsEmptyOrder(t *testing.T) {
	_, err := ComputeOrderTotals(domain.CategorySubtotals{}, domain.TaxConfig{FoodTax: 10}, 100)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestTotalsInvariantsHoldForRandomOrders(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		multiple := []float64{1, 100}[rng.Intn(2)]
		subtotals := domain.CategorySubtotals{
			Food:    RoundToMultiple(rng.Float64()*10000+1, multiple),
			Alcohol: RoundToMultiple(rng.Float64()*5000, multiple),
		}
		tax := domain.TaxConfig{FoodTax: float64(rng.Intn(20)), AlcoholTax: float64(rng.Intn(20))}

		exclusive, err := ComputeOrderTotals(subtotals, tax, multiple)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(exclusive.SubTotal+exclusive.Tax-exclusive.Total) > 1e-9 {
			t.Fatalf("exclusive: %v + %v != %v", exclusive.SubTotal, exclusive.Tax, exclusive.Total)
		}

		tax.InclusiveTax = true
		inclusive, err := ComputeOrderTotals(subtotals, tax, multiple)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inclusive.Total != inclusive.SubTotal {
			t.Fatalf("inclusive: total %v != subtotal %v", inclusive.Total, inclusive.SubTotal)
		}
		food := inclusive.Accounting.Food
		if math.Abs(food.Revenue+food.Tax-subtotals.Food) > 1e-9 {
			t.Fatalf("inclusive: revenue %v + tax %v != %v", food.Revenue, food.Tax, subtotals.Food)
		}
	}
}

func TestRoundToMultipleIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		value := rng.Float64() * 100000
		for _, multiple := range []float64{1, 10, 100} {
			once := RoundToMultiple(value, multiple)
			if twice := RoundToMultiple(once, multiple); twice != once {
				t.Fatalf("round(%v, %v): %v then %v", value, multiple, once, twice)
			}
		}
	}
}

func TestOptionPrice(t *testing.T) {
	cases := map[string]float64{
		"Large (+100)":  100,
		"Small (-50)":   -50,
		"大盛り (＋120)":    120,
		"少なめ (ー30)":     -30,
		"Spicy (−1.5)":  -1.5,
		"No price":      0,
		"Broken (+abc)": 0,
	}
	for label, want := range cases {
		if got := OptionPrice(label); got != want {
			t.Fatalf("OptionPrice(%q) = %v, want %v", label, got, want)
		}
	}
}

func TestComputeLinePriceWithOptions(t *testing.T) {
	catalog := []string{
		"Extra cheese (+150)",
		"Regular,Large (+200),Small (-100)",
	}
	price, err := ComputeLinePrice(800, []int{1, 1}, catalog, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 1150 {
		t.Fatalf("expected 1150, got %v", price)
	}

	price, err = ComputeLinePrice(800, []int{0, 2}, catalog, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 700 {
		t.Fatalf("expected 700, got %v", price)
	}

	if _, err := ComputeLinePrice(800, []int{0, 5}, catalog, 1); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for out of range choice, got %v", err)
	}
}

func TestPriceOrderQuantityValidation(t *testing.T) {
	menus := twoItemMenu()
	cases := []struct {
		name  string
		items domain.LineQuantities
		want  error
	}{
		{name: "negative", items: domain.LineQuantities{"curry": {-1}}, want: ErrInvalidQuantity},
		{name: "fractional", items: domain.LineQuantities{"curry": {1.5}}, want: ErrInvalidQuantity},
		{name: "huge", items: domain.LineQuantities{"curry": {1e20}}, want: ErrInvalidQuantity},
		{name: "above line maximum", items: domain.LineQuantities{"curry": {maxLineQuantity + 1}}, want: ErrInvalidQuantity},
		{name: "unknown", items: domain.LineQuantities{"ramen": {1}}, want: ErrUnknownMenuItem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PriceOrder(tc.items, nil, menus, 100); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPriceOrderDropsZeroLinesAndDeletedMenus(t *testing.T) {
	menus := twoItemMenu()
	priced, err := PriceOrder(domain.LineQuantities{"curry": {0, 1}, "salad": {0}}, nil, menus, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(priced.Items["curry"]) != 1 || priced.Items["curry"][0] != 1 {
		t.Fatalf("expected zero line dropped, got %v", priced.Items)
	}
	if _, ok := priced.Items["salad"]; ok {
		t.Fatalf("expected salad dropped entirely")
	}
	if _, ok := priced.MenuItems["salad"]; ok {
		t.Fatalf("expected no snapshot for dropped menu")
	}

	deleted := menus["salad"]
	deleted.DeletedFlag = true
	menus["salad"] = deleted
	if _, err := PriceOrder(domain.LineQuantities{"salad": {1}}, nil, menus, 1); !errors.Is(err, ErrUnknownMenuItem) {
		t.Fatalf("expected deleted menu to be unknown, got %v", err)
	}
}

func TestPriceOrderAppliesPerLineOptions(t *testing.T) {
	menus := map[string]domain.MenuItem{
		"pizza": {ID: "pizza", Price: 1000, ItemOptionCheckbox: []string{"S,M (+200),L (+400)"}},
		"beer":  {ID: "beer", Price: 600, Tax: domain.TaxCategoryAlcohol},
	}
	priced, err := PriceOrder(
		domain.LineQuantities{"pizza": {1, 2}, "beer": {3}},
		domain.OptionSelections{"pizza": {{2}, {1}}},
		menus, 1,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := priced.Prices["pizza"]; len(got) != 2 || got[0] != 1400 || got[1] != 2400 {
		t.Fatalf("unexpected pizza prices %v", got)
	}
	if priced.Subtotals.Food != 3800 || priced.Subtotals.Alcohol != 1800 {
		t.Fatalf("unexpected subtotals %+v", priced.Subtotals)
	}
}
