package services

import (
	"context"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order        = domain.Order
	OrderStatus  = domain.OrderStatus
	Restaurant   = domain.Restaurant
	RegionConfig = domain.RegionConfig
	TaxConfig    = domain.TaxConfig
)

// OrderService drives an order from validation through placement and the operator lifecycle.
type OrderService interface {
	Validate(ctx context.Context, cmd ValidateOrderCommand) (ValidationResult, error)
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PaymentService owns every mutation of an order's payment state.
type PaymentService interface {
	Capture(ctx context.Context, cmd CapturePaymentCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelPaymentCommand) (Order, error)
}

// PaymentProcessor is the external processor holding order authorizations. Calls are network
// round trips and never run inside a store transaction.
type PaymentProcessor interface {
	RetrieveAuthorization(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error)
	CaptureAuthorization(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error)
	CancelAuthorization(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error)
}

// Notifier delivers restaurant and customer notifications after a transition commits.
type Notifier interface {
	NotifyRestaurant(ctx context.Context, n RestaurantNotification) error
	NotifyCustomer(ctx context.Context, n CustomerNotification) error
}

// RestaurantNotification announces a newly placed order to the restaurant.
type RestaurantNotification struct {
	RestaurantID   string
	RestaurantName string
	OrderID        string
	OrderLabel     string
	TotalCharge    float64
	Locale         string
}

// CustomerNotification carries a localised status message for the customer.
type CustomerNotification struct {
	MessageKey     string
	RestaurantID   string
	RestaurantName string
	OrderID        string
	OrderLabel     string
	CustomerUID    string
	PhoneNumber    string
	Locale         string
	Params         map[string]string
}

// ValidateOrderCommand asks to validate and price a freshly created order.
type ValidateOrderCommand struct {
	RestaurantID string
	OrderID      string
	CallerUID    string
}

// ValidationResult reports the outcome of Validate. Failure is set when the order was moved to
// the error status because of an order-local problem.
type ValidationResult struct {
	Order   Order
	Failure error
}

// PlaceOrderCommand places a validated order.
type PlaceOrderCommand struct {
	RestaurantID string
	OrderID      string
	CallerUID    string
	Tip          float64
	SendSMS      bool
	TimeToPickup *time.Time
	Memo         string
	Locale       string
}

// UpdateOrderStatusCommand moves an order along the operator lifecycle.
type UpdateOrderStatusCommand struct {
	RestaurantID  string
	OrderID       string
	CallerUID     string
	Status        OrderStatus
	TimeEstimated *time.Time
	// Timezone is an IANA name used to render times in customer messages.
	Timezone string
	Locale   string
}

// CapturePaymentCommand captures the pending authorization of an order.
type CapturePaymentCommand struct {
	RestaurantID string
	OrderID      string
	CallerUID    string
	Locale       string
}

// CancelPaymentCommand cancels an order together with its authorization, if any.
type CancelPaymentCommand struct {
	RestaurantID string
	OrderID      string
	CallerUID    string
	Locale       string
}
