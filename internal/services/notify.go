package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type eventLogger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

// notifyRestaurant and notifyCustomer run after commit. Failures are logged and swallowed.
func notifyRestaurant(ctx context.Context, notifier Notifier, logger eventLogger, n RestaurantNotification) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyRestaurant(ctx, n); err != nil {
		logger(ctx, "order.notification.restaurant.failed", map[string]any{
			"restaurantID": n.RestaurantID,
			"orderID":      n.OrderID,
			"error":        err.Error(),
		})
	}
}

func notifyCustomer(ctx context.Context, notifier Notifier, logger eventLogger, n CustomerNotification) {
	if notifier == nil || n.MessageKey == "" {
		return
	}
	if err := notifier.NotifyCustomer(ctx, n); err != nil {
		logger(ctx, "order.notification.customer.failed", map[string]any{
			"restaurantID": n.RestaurantID,
			"orderID":      n.OrderID,
			"messageKey":   n.MessageKey,
			"error":        err.Error(),
		})
	}
}

func customerNotification(key string, restaurant Restaurant, order Order, locale string, params map[string]string) CustomerNotification {
	return CustomerNotification{
		MessageKey:     key,
		RestaurantID:   restaurant.ID,
		RestaurantName: restaurant.RestaurantName,
		OrderID:        order.ID,
		OrderLabel:     orderLabel(order.Number),
		CustomerUID:    order.UID,
		PhoneNumber:    order.PhoneNumber,
		Locale:         locale,
		Params:         params,
	}
}

func requireOrderRef(restaurantID, orderID, callerUID string) (string, string, string, error) {
	callerUID = strings.TrimSpace(callerUID)
	if callerUID == "" {
		return "", "", "", ErrUnauthenticated
	}
	restaurantID = strings.TrimSpace(restaurantID)
	orderID = strings.TrimSpace(orderID)
	if restaurantID == "" || orderID == "" {
		return "", "", "", invalidArgument("restaurant id and order id are required")
	}
	if strings.Contains(restaurantID, "/") || strings.Contains(orderID, "/") {
		return "", "", "", invalidArgument("ids must not contain '/'")
	}
	return restaurantID, orderID, callerUID, nil
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// mapTxError keeps caller-facing errors raised inside a transaction body and classifies the rest.
func mapTxError(err error) error {
	if err == nil || isServiceError(err) {
		return err
	}
	return mapRepositoryError(err)
}
