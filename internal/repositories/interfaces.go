package repositories

import (
	"context"

	domain "github.com/ukisoft/ownplate/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TxFunc is the body of an order transaction. It may run more than once and must not
// perform external side effects.
type TxFunc func(ctx context.Context, tx OrderTx) error

// OrderStore is the transactional document store backing the order lifecycle.
type OrderStore interface {
	// RunTransaction executes fn atomically, retrying the whole body on write conflicts.
	RunTransaction(ctx context.Context, fn TxFunc) error

	GetRestaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error)
	GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error)
	// GetMenuItems returns the requested menu documents keyed by id. Missing ids are omitted.
	GetMenuItems(ctx context.Context, restaurantID string, menuIDs []string) (map[string]domain.MenuItem, error)
	GetPaymentRecord(ctx context.Context, restaurantID, orderID string) (domain.PaymentRecord, error)
	// GetPaymentAccount returns the connected processor account of a restaurant owner.
	GetPaymentAccount(ctx context.Context, ownerUID string) (string, error)
}

// OrderTx is the handle passed to transaction bodies. Every read must happen before the
// first write; implementations return ErrReadAfterWrite otherwise.
type OrderTx interface {
	GetRestaurant(restaurantID string) (domain.Restaurant, error)
	GetOrder(restaurantID, orderID string) (domain.Order, error)
	GetPaymentRecord(restaurantID, orderID string) (domain.PaymentRecord, error)
	// GetOrderTotal reports found=false when the day's counter does not exist yet.
	GetOrderTotal(restaurantID, menuID, date string) (total domain.OrderTotal, found bool, err error)
	GetCustomerLog(restaurantID, uid string) (log domain.CustomerLog, found bool, err error)

	SetOrder(order domain.Order) error
	SetRestaurantOrderCount(restaurantID string, count int64) error
	SetOrderTotal(total domain.OrderTotal) error
	SetCustomerLog(log domain.CustomerLog) error
}
