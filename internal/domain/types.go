package domain

import (
	"time"
)

// PaymentState tracks the processor-side state of an order payment.
type PaymentState string

const (
	// PaymentStateNone indicates the order is paid on pickup.
	PaymentStateNone PaymentState = ""
	// PaymentStatePending indicates an authorization exists and awaits capture.
	PaymentStatePending PaymentState = "pending"
	// PaymentStateConfirmed indicates the authorization was captured.
	PaymentStateConfirmed PaymentState = "confirmed"
	// PaymentStateCanceled indicates the authorization was released.
	PaymentStateCanceled PaymentState = "canceled"
)

// Valid reports whether the state is one of the known payment states.
func (s PaymentState) Valid() bool {
	switch s {
	case PaymentStateNone, PaymentStatePending, PaymentStateConfirmed, PaymentStateCanceled:
		return true
	}
	return false
}

// TaxCategory classifies menu items for tax accounting.
type TaxCategory string

const (
	TaxCategoryFood    TaxCategory = "food"
	TaxCategoryAlcohol TaxCategory = "alcohol"
)

// LineQuantities maps menu ids to the quantity of each per-unit configuration ordered.
type LineQuantities map[string][]float64

// OptionSelections maps menu ids to the selected option indexes of each line.
type OptionSelections map[string][][]int

// OrderPayment holds payment processor state for an order.
type OrderPayment struct {
	Stripe PaymentState
}

// OrderMenuItem is the display snapshot stored on an order at validation time.
type OrderMenuItem struct {
	Price           float64
	ItemName        string
	ItemPhoto       string
	ItemAliasesName string
	Category1       string
	Category2       string
}

// Order is the central order-lifecycle document.
type Order struct {
	ID           string
	RestaurantID string
	UID          string
	Status       OrderStatus
	Items        LineQuantities
	RawOptions   OptionSelections
	MenuItems    map[string]OrderMenuItem
	Prices       map[string][]float64
	SubTotal     float64
	Tax          float64
	InclusiveTax bool
	Total        float64
	TotalCharge  float64
	Tip          float64
	Accounting   *Accounting
	Number       int64
	SendSMS      bool
	Memo         string
	PhoneNumber  string
	Payment      OrderPayment

	TimePlaced    *time.Time
	TimeEstimated *time.Time
	TimeConfirmed *time.Time

	OrderPlacedAt    *time.Time
	OrderAcceptedAt  *time.Time
	ReadyToPickupAt  *time.Time
	OrderCompletedAt *time.Time
	OrderCanceledAt  *time.Time
	UpdatedAt        *time.Time
}

// Restaurant carries the owner and tax configuration consulted by the order lifecycle.
type Restaurant struct {
	ID             string
	UID            string
	RestaurantName string
	InclusiveTax   bool
	FoodTax        float64
	AlcoholTax     float64
	OrderCount     int64
	PublicFlag     bool
	DeletedFlag    bool
}

// TaxConfig returns the restaurant tax configuration.
func (r Restaurant) TaxConfig() TaxConfig {
	return TaxConfig{
		InclusiveTax: r.InclusiveTax,
		FoodTax:      r.FoodTax,
		AlcoholTax:   r.AlcoholTax,
	}
}

// Orderable reports whether customers may order from the restaurant.
func (r Restaurant) Orderable() bool {
	return r.PublicFlag && !r.DeletedFlag
}

// MenuItem is the subset of a restaurant menu document used for pricing.
type MenuItem struct {
	ID                 string
	ItemName           string
	Price              float64
	Tax                TaxCategory
	ItemPhoto          string
	ItemAliasesName    string
	Category1          string
	Category2          string
	ItemOptionCheckbox []string
	DeletedFlag        bool
}

// Snapshot returns the display data stored on orders.
func (m MenuItem) Snapshot() OrderMenuItem {
	return OrderMenuItem{
		Price:           m.Price,
		ItemName:        m.ItemName,
		ItemPhoto:       m.ItemPhoto,
		ItemAliasesName: m.ItemAliasesName,
		Category1:       m.Category1,
		Category2:       m.Category2,
	}
}

// OrderTotal is the per-day sold count of a single menu item.
type OrderTotal struct {
	RestaurantID string
	MenuID       string
	Date         string
	OwnerUID     string
	Count        int64
}

// CustomerLog tracks per-customer placement and cancellation counts for a restaurant.
type CustomerLog struct {
	RestaurantID  string
	UID           string
	OwnerUID      string
	Counter       int64
	CancelCounter int64
	CurrentOrder  time.Time
	LastOrder     *time.Time
}

// PaymentRecord references the processor authorization issued for an order.
type PaymentRecord struct {
	RestaurantID    string
	OrderID         string
	PaymentIntentID string
	CreatedAt       time.Time
}
