package domain

import "time"

// TaxConfig describes how a restaurant applies consumption tax. Rates are percentages.
type TaxConfig struct {
	InclusiveTax bool
	FoodTax      float64
	AlcoholTax   float64
}

// Rate returns the fractional rate for the category.
func (c TaxConfig) Rate(category TaxCategory) float64 {
	if category == TaxCategoryAlcohol {
		return c.AlcoholTax / 100
	}
	return c.FoodTax / 100
}

// RegionConfig carries the settlement currency and local clock of a deployment.
type RegionConfig struct {
	Currency string
	// Multiple is the minor-unit scaling factor: 100 for two-decimal currencies, 1 for zero-decimal ones.
	Multiple float64
	Location *time.Location
	Locale   string
}

// TimeLocation returns the region location, falling back to UTC.
func (c RegionConfig) TimeLocation() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// CategorySubtotals holds subtotals per tax category.
type CategorySubtotals struct {
	Food    float64
	Alcohol float64
}

// Sum returns the combined subtotal.
func (s CategorySubtotals) Sum() float64 {
	return s.Food + s.Alcohol
}

// CategoryAccounting splits a category subtotal into net revenue and tax.
type CategoryAccounting struct {
	Revenue float64
	Tax     float64
}

// Accounting records the revenue and tax split of an order by tax category.
type Accounting struct {
	Food    CategoryAccounting
	Alcohol CategoryAccounting
}

// OrderTotals is the result of applying a tax configuration to category subtotals.
type OrderTotals struct {
	SubTotal     float64
	Tax          float64
	Total        float64
	InclusiveTax bool
	Accounting   Accounting
}
