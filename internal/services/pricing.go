package services

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

// optionPricePattern matches a signed price in parentheses, e.g. "Large (+100)" or "ライス少なめ (−50)".
var optionPricePattern = regexp.MustCompile(`\(((\+|\-|＋|ー|−)[0-9.]+)\)`)

var signReplacer = strings.NewReplacer("＋", "+", "ー", "-", "−", "-")

// maxLineQuantity bounds a single quantity so counters stay well inside int64.
const maxLineQuantity = 1000

// PricedOrder is the outcome of pricing raw order quantities against menu documents.
type PricedOrder struct {
	Items     domain.LineQuantities
	Prices    map[string][]float64
	MenuItems map[string]domain.OrderMenuItem
	Subtotals domain.CategorySubtotals
}

// RoundToMultiple rounds value to the currency granularity described by multiple.
func RoundToMultiple(value, multiple float64) float64 {
	if multiple <= 0 {
		multiple = 1
	}
	return math.Round(value*multiple) / multiple
}

// OptionPrice extracts the price delta encoded in an option label. Labels without a price yield 0.
func OptionPrice(label string) float64 {
	match := optionPricePattern.FindStringSubmatch(label)
	if len(match) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(signReplacer.Replace(match[1]), 64)
	if err != nil {
		return 0
	}
	return value
}

// ComputeLinePrice returns the unit price of a line: the base price plus every selected option.
// optionCatalog holds one comma separated group per entry; a single-label group is a toggle and a
// multi-label group is a mutually exclusive choice indexed by the selection.
func ComputeLinePrice(basePrice float64, selectedOptions []int, optionCatalog []string, multiple float64) (float64, error) {
	price := basePrice
	for group, selected := range selectedOptions {
		if group >= len(optionCatalog) {
			if selected == 0 {
				continue
			}
			return 0, fmt.Errorf("%w: option group %d does not exist", ErrInvalidOrder, group)
		}
		labels := strings.Split(optionCatalog[group], ",")
		if len(labels) == 1 {
			if selected != 0 {
				price += RoundToMultiple(OptionPrice(labels[0]), multiple)
			}
			continue
		}
		if selected < 0 || selected >= len(labels) {
			return 0, fmt.Errorf("%w: option %d out of range for group %d", ErrInvalidOrder, selected, group)
		}
		price += RoundToMultiple(OptionPrice(labels[selected]), multiple)
	}
	return RoundToMultiple(price, multiple), nil
}

// PriceOrder validates quantities and prices every line of an order.
func PriceOrder(quantities domain.LineQuantities, rawOptions domain.OptionSelections, menus map[string]domain.MenuItem, multiple float64) (PricedOrder, error) {
	menuIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		menuIDs = append(menuIDs, id)
	}
	slices.Sort(menuIDs)

	for _, id := range menuIDs {
		menu, ok := menus[id]
		if !ok || menu.DeletedFlag {
			return PricedOrder{}, fmt.Errorf("%w: %s", ErrUnknownMenuItem, id)
		}
	}

	priced := PricedOrder{
		Items:     make(domain.LineQuantities),
		Prices:    make(map[string][]float64),
		MenuItems: make(map[string]domain.OrderMenuItem),
	}
	for _, id := range menuIDs {
		menu := menus[id]
		var options [][]int
		if rawOptions != nil {
			options = rawOptions[id]
		}
		for line, quantity := range quantities[id] {
			if err := validateQuantity(quantity); err != nil {
				return PricedOrder{}, fmt.Errorf("%w: menu %s line %d", err, id, line)
			}
			if quantity == 0 {
				continue
			}
			var selected []int
			if line < len(options) {
				selected = options[line]
			}
			unit, err := ComputeLinePrice(menu.Price, selected, menu.ItemOptionCheckbox, multiple)
			if err != nil {
				return PricedOrder{}, fmt.Errorf("menu %s line %d: %w", id, line, err)
			}
			total := RoundToMultiple(unit*quantity, multiple)
			priced.Items[id] = append(priced.Items[id], quantity)
			priced.Prices[id] = append(priced.Prices[id], total)
			if menu.Tax == domain.TaxCategoryAlcohol {
				priced.Subtotals.Alcohol += total
			} else {
				priced.Subtotals.Food += total
			}
		}
		if len(priced.Items[id]) > 0 {
			priced.MenuItems[id] = menu.Snapshot()
		}
	}
	priced.Subtotals.Food = RoundToMultiple(priced.Subtotals.Food, multiple)
	priced.Subtotals.Alcohol = RoundToMultiple(priced.Subtotals.Alcohol, multiple)
	return priced, nil
}

func validateQuantity(quantity float64) error {
	switch {
	case math.IsNaN(quantity) || math.IsInf(quantity, 0):
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, quantity)
	case quantity != math.Trunc(quantity):
		return fmt.Errorf("%w: %v is not an integer", ErrInvalidQuantity, quantity)
	case quantity < 0:
		return fmt.Errorf("%w: %v is negative", ErrInvalidQuantity, quantity)
	case quantity > maxLineQuantity:
		return fmt.Errorf("%w: %v exceeds %d", ErrInvalidQuantity, quantity, maxLineQuantity)
	}
	return nil
}

// ComputeOrderTotals applies the tax configuration to category subtotals.
func ComputeOrderTotals(subtotals domain.CategorySubtotals, tax domain.TaxConfig, multiple float64) (domain.OrderTotals, error) {
	subTotal := RoundToMultiple(subtotals.Sum(), multiple)
	if subTotal == 0 {
		return domain.OrderTotals{}, fmt.Errorf("%w: nothing to order", ErrInvalidOrder)
	}

	food := categoryAccounting(subtotals.Food, tax.Rate(domain.TaxCategoryFood), tax.InclusiveTax, multiple)
	alcohol := categoryAccounting(subtotals.Alcohol, tax.Rate(domain.TaxCategoryAlcohol), tax.InclusiveTax, multiple)
	totalTax := RoundToMultiple(food.Tax+alcohol.Tax, multiple)

	totals := domain.OrderTotals{
		SubTotal:     subTotal,
		Tax:          totalTax,
		Total:        subTotal,
		InclusiveTax: tax.InclusiveTax,
		Accounting: domain.Accounting{
			Food:    food,
			Alcohol: alcohol,
		},
	}
	if !tax.InclusiveTax {
		totals.Total = RoundToMultiple(subTotal+totalTax, multiple)
	}
	return totals, nil
}

func categoryAccounting(subtotal, rate float64, inclusive bool, multiple float64) domain.CategoryAccounting {
	if inclusive {
		tax := RoundToMultiple(subtotal*(1-1/(1+rate)), multiple)
		return domain.CategoryAccounting{Revenue: RoundToMultiple(subtotal-tax, multiple), Tax: tax}
	}
	return domain.CategoryAccounting{Revenue: subtotal, Tax: RoundToMultiple(subtotal*rate, multiple)}
}
