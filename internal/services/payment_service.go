package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/payments"
	"github.com/ukisoft/ownplate/internal/repositories"
)

var capturableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusOrderPlaced,
	domain.OrderStatusOrderAccepted,
	domain.OrderStatusReadyToPickup,
}

// PaymentServiceDeps bundles collaborators required to construct the payment coordinator.
type PaymentServiceDeps struct {
	Store     repositories.OrderStore
	Processor PaymentProcessor
	Notifier  Notifier
	Region    RegionConfig
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	store     repositories.OrderStore
	processor PaymentProcessor
	notifier  Notifier
	region    RegionConfig
	clock     func() time.Time
	logger    eventLogger
}

// NewPaymentService constructs the coordinator that owns order payment state.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Store == nil {
		return nil, errors.New("payment service: store is required")
	}
	if deps.Processor == nil {
		return nil, errors.New("payment service: processor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentService{
		store:     deps.Store,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		region:    deps.Region,
		clock:     utcClock(deps.Clock),
		logger:    logger,
	}, nil
}

// Capture verifies the authorization is capturable, captures it, then records the result in a
// short finalize transaction. Processor calls never run inside the transaction body.
func (s *paymentService) Capture(ctx context.Context, cmd CapturePaymentCommand) (Order, error) {
	ctx, span := startOrderSpan(ctx, "PaymentService.Capture", cmd.RestaurantID, cmd.OrderID)
	defer span.End()

	restaurantID, orderID, caller, err := requireOrderRef(cmd.RestaurantID, cmd.OrderID, cmd.CallerUID)
	if err != nil {
		return Order{}, err
	}
	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if restaurant.UID != caller {
		return Order{}, fmt.Errorf("%w: only the restaurant owner can capture payments", ErrPermissionDenied)
	}

	order, err := s.store.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if err := checkCapturable(order); err != nil {
		return Order{}, err
	}
	req, err := s.authorizationRequest(ctx, restaurant, order, "capture")
	if err != nil {
		return Order{}, err
	}

	auth, err := s.processor.RetrieveAuthorization(ctx, req)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var captured payments.Authorization
	switch {
	case auth.Captured() && auth.ID == req.AuthorizationID:
		// An earlier capture reached the processor but its finalize transaction did not commit.
		s.logger(ctx, "payment.capture.reconciled", map[string]any{
			"restaurantID":  restaurantID,
			"orderID":       orderID,
			"paymentIntent": auth.ID,
		})
		captured = auth
	case auth.Capturable():
		captured, err = s.processor.CaptureAuthorization(ctx, req)
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	default:
		s.logger(ctx, "payment.capture.refused", map[string]any{
			"restaurantID":  restaurantID,
			"orderID":       orderID,
			"paymentIntent": auth.ID,
			"status":        string(auth.Status),
		})
		return Order{}, fmt.Errorf("%w: authorization is %s, not capturable", ErrFailedPrecondition, auth.Status)
	}

	now := s.clock()
	var previous, confirmed Order
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		current, err := tx.GetOrder(restaurantID, orderID)
		if err != nil {
			return err
		}
		record, err := tx.GetPaymentRecord(restaurantID, orderID)
		if err != nil {
			return err
		}
		if current.Payment.Stripe != domain.PaymentStatePending || record.PaymentIntentID != req.AuthorizationID {
			return fmt.Errorf("%w: order payment changed during capture", ErrFailedPrecondition)
		}
		previous = current
		current.Payment.Stripe = domain.PaymentStateConfirmed
		current.TimeConfirmed = &now
		if current.Status == domain.OrderStatusOrderAccepted {
			current.StampStatus(domain.OrderStatusReadyToPickup, now)
		} else {
			current.UpdatedAt = &now
		}
		if err := tx.SetOrder(current); err != nil {
			return err
		}
		confirmed = current
		return nil
	})
	if err != nil {
		// The processor already holds the funds; surface loudly so the order can be reconciled.
		s.logger(ctx, "payment.capture.finalize_failed", map[string]any{
			"restaurantID":  restaurantID,
			"orderID":       orderID,
			"paymentIntent": captured.ID,
			"error":         err.Error(),
		})
		return Order{}, mapTxError(err)
	}

	s.logger(ctx, "payment.captured", map[string]any{
		"restaurantID":   restaurantID,
		"orderID":        orderID,
		"paymentIntent":  captured.ID,
		"amountReceived": captured.AmountReceived,
		"status":         confirmed.Status.String(),
	})
	if confirmed.Status != previous.Status && confirmed.SendSMS {
		if key := statusMessageKey(confirmed.Status, previous, now); key != "" {
			locale := matchLocale(cmd.Locale, s.region.Locale)
			notifyCustomer(ctx, s.notifier, s.logger, customerNotification(key, restaurant, confirmed, locale.String(), nil))
		}
	}
	return confirmed, nil
}

// Cancel cancels an order, releasing its authorization first when one is pending. The owner may
// cancel from any cancelable status; the customer only while the order is still placed.
func (s *paymentService) Cancel(ctx context.Context, cmd CancelPaymentCommand) (Order, error) {
	ctx, span := startOrderSpan(ctx, "PaymentService.Cancel", cmd.RestaurantID, cmd.OrderID)
	defer span.End()

	restaurantID, orderID, caller, err := requireOrderRef(cmd.RestaurantID, cmd.OrderID, cmd.CallerUID)
	if err != nil {
		return Order{}, err
	}
	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	order, err := s.store.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	byOwner := restaurant.UID == caller
	switch {
	case byOwner:
	case order.UID == caller:
		if order.Status != domain.OrderStatusOrderPlaced {
			return Order{}, &TransitionError{From: order.Status, To: domain.OrderStatusOrderCanceled, Reason: "the restaurant has already accepted this order"}
		}
	default:
		return Order{}, fmt.Errorf("%w: caller cannot cancel this order", ErrPermissionDenied)
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusOrderCanceled) {
		return Order{}, &TransitionError{From: order.Status, To: domain.OrderStatusOrderCanceled}
	}
	if order.Payment.Stripe == domain.PaymentStateConfirmed {
		return Order{}, fmt.Errorf("%w: captured payments cannot be canceled", ErrFailedPrecondition)
	}

	if order.Payment.Stripe == domain.PaymentStatePending {
		req, err := s.authorizationRequest(ctx, restaurant, order, "cancel")
		if err != nil {
			return Order{}, err
		}
		released, err := s.processor.CancelAuthorization(ctx, req)
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.logger(ctx, "payment.authorization.canceled", map[string]any{
			"restaurantID":  restaurantID,
			"orderID":       orderID,
			"paymentIntent": released.ID,
		})
	}

	now := s.clock()
	loc := s.region.TimeLocation()
	var canceled Order
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		current, err := tx.GetOrder(restaurantID, orderID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, domain.OrderStatusOrderCanceled) {
			return &TransitionError{From: current.Status, To: domain.OrderStatusOrderCanceled}
		}
		if current.Payment.Stripe != order.Payment.Stripe {
			return fmt.Errorf("%w: order payment changed during cancellation", ErrFailedPrecondition)
		}
		if err := applyOrderTotals(tx, reversalUpdate(current, restaurant.UID, loc, now)); err != nil {
			return err
		}
		if current.Payment.Stripe == domain.PaymentStatePending {
			current.Payment.Stripe = domain.PaymentStateCanceled
		}
		current.StampStatus(domain.OrderStatusOrderCanceled, now)
		if err := tx.SetOrder(current); err != nil {
			return err
		}
		canceled = current
		return nil
	})
	if err != nil {
		return Order{}, mapTxError(err)
	}

	s.logger(ctx, "order.canceled", map[string]any{
		"restaurantID": restaurantID,
		"orderID":      orderID,
		"byOwner":      byOwner,
	})
	if byOwner && canceled.SendSMS {
		locale := matchLocale(cmd.Locale, s.region.Locale)
		notifyCustomer(ctx, s.notifier, s.logger, customerNotification(msgOrderCanceled, restaurant, canceled, locale.String(), nil))
	}
	return canceled, nil
}

func checkCapturable(order Order) error {
	if order.Payment.Stripe != domain.PaymentStatePending {
		return fmt.Errorf("%w: order has no pending payment", ErrFailedPrecondition)
	}
	if !slices.Contains(capturableOrderStatuses, order.Status) {
		return &TransitionError{From: order.Status, To: domain.OrderStatusReadyToPickup, Reason: "payment cannot be captured in this status"}
	}
	return nil
}

// authorizationRequest gathers the processor identifiers for an order outside any transaction.
func (s *paymentService) authorizationRequest(ctx context.Context, restaurant Restaurant, order Order, op string) (payments.AuthorizationRequest, error) {
	record, err := s.store.GetPaymentRecord(ctx, order.RestaurantID, order.ID)
	if repositories.IsNotFound(err) {
		return payments.AuthorizationRequest{}, fmt.Errorf("%w: order has no payment authorization", ErrFailedPrecondition)
	}
	if err != nil {
		return payments.AuthorizationRequest{}, mapRepositoryError(err)
	}
	account, err := s.store.GetPaymentAccount(ctx, restaurant.UID)
	if repositories.IsNotFound(err) {
		return payments.AuthorizationRequest{}, fmt.Errorf("%w: restaurant has no payment account", ErrFailedPrecondition)
	}
	if err != nil {
		return payments.AuthorizationRequest{}, mapRepositoryError(err)
	}
	return payments.AuthorizationRequest{
		AuthorizationID: record.PaymentIntentID,
		Account:         account,
		IdempotencyKey:  op + "-" + order.RestaurantID + "-" + order.ID,
		Metadata: map[string]string{
			"restaurantId": order.RestaurantID,
			"orderId":      order.ID,
		},
	}, nil
}
