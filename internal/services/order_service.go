package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

const (
	orderNumberModulo = 1_000_000
	maxMemoRunes      = 500
)

var tracer = otel.Tracer("github.com/ukisoft/ownplate/internal/services")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Store    repositories.OrderStore
	Notifier Notifier
	Region   RegionConfig
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	store      repositories.OrderStore
	notifier   Notifier
	region     RegionConfig
	clock      func() time.Time
	logger     eventLogger
	memoPolicy *bluemonday.Policy
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	if deps.Region.Multiple <= 0 {
		return nil, errors.New("order service: region rounding multiple must be positive")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		store:      deps.Store,
		notifier:   deps.Notifier,
		region:     deps.Region,
		clock:      utcClock(deps.Clock),
		logger:     logger,
		memoPolicy: bluemonday.StrictPolicy(),
	}, nil
}

func startOrderSpan(ctx context.Context, name, restaurantID, orderID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.String("order.id", orderID),
	))
}

func (s *orderService) Validate(ctx context.Context, cmd ValidateOrderCommand) (ValidationResult, error) {
	ctx, span := startOrderSpan(ctx, "OrderService.Validate", cmd.RestaurantID, cmd.OrderID)
	defer span.End()

	restaurantID, orderID, caller, err := requireOrderRef(cmd.RestaurantID, cmd.OrderID, cmd.CallerUID)
	if err != nil {
		return ValidationResult{}, err
	}

	order, err := s.store.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return ValidationResult{}, mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusNewOrder || order.UID != caller {
		return ValidationResult{}, invalidArgument("this order does not exist")
	}

	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	switch {
	case repositories.IsNotFound(err):
		return s.failValidation(ctx, order, fmt.Errorf("%w: restaurant does not exist", ErrInvalidOrder))
	case err != nil:
		return ValidationResult{}, mapRepositoryError(err)
	case !restaurant.Orderable():
		return s.failValidation(ctx, order, fmt.Errorf("%w: restaurant is not accepting orders", ErrInvalidOrder))
	}

	menuIDs := make([]string, 0, len(order.Items))
	for id := range order.Items {
		menuIDs = append(menuIDs, id)
	}
	slices.Sort(menuIDs)
	menus, err := s.store.GetMenuItems(ctx, restaurantID, menuIDs)
	if err != nil {
		return ValidationResult{}, mapRepositoryError(err)
	}

	priced, err := PriceOrder(order.Items, order.RawOptions, menus, s.region.Multiple)
	if err != nil {
		return s.failValidation(ctx, order, err)
	}
	totals, err := ComputeOrderTotals(priced.Subtotals, restaurant.TaxConfig(), s.region.Multiple)
	if err != nil {
		return s.failValidation(ctx, order, err)
	}

	number, err := s.nextOrderNumber(ctx, restaurantID)
	if err != nil {
		return ValidationResult{}, err
	}

	now := s.clock()
	var validated Order
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		current, err := tx.GetOrder(restaurantID, orderID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusNewOrder {
			return &TransitionError{From: current.Status, To: domain.OrderStatusValidationOK}
		}
		accounting := totals.Accounting
		current.Items = priced.Items
		current.MenuItems = priced.MenuItems
		current.Prices = priced.Prices
		current.Number = number
		current.SubTotal = totals.SubTotal
		current.Tax = totals.Tax
		current.InclusiveTax = totals.InclusiveTax
		current.Total = totals.Total
		current.Accounting = &accounting
		current.StampStatus(domain.OrderStatusValidationOK, now)
		if err := tx.SetOrder(current); err != nil {
			return err
		}
		validated = current
		return nil
	})
	if err != nil {
		return ValidationResult{}, mapTxError(err)
	}

	s.logger(ctx, "order.validated", map[string]any{
		"restaurantID": restaurantID,
		"orderID":      orderID,
		"number":       number,
		"total":        validated.Total,
	})
	return ValidationResult{Order: validated}, nil
}

// failValidation records an order-local failure as the order's error status.
func (s *orderService) failValidation(ctx context.Context, order Order, cause error) (ValidationResult, error) {
	now := s.clock()
	var failed Order
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		current, err := tx.GetOrder(order.RestaurantID, order.ID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, domain.OrderStatusError) {
			return &TransitionError{From: current.Status, To: domain.OrderStatusError}
		}
		current.StampStatus(domain.OrderStatusError, now)
		if err := tx.SetOrder(current); err != nil {
			return err
		}
		failed = current
		return nil
	})
	if err != nil {
		return ValidationResult{}, mapTxError(err)
	}
	s.logger(ctx, "order.validation.failed", map[string]any{
		"restaurantID": order.RestaurantID,
		"orderID":      order.ID,
		"error":        cause.Error(),
	})
	return ValidationResult{Order: failed, Failure: cause}, nil
}

// nextOrderNumber reserves a display number. It runs in its own transaction so the restaurant
// document is not held by the longer validation write.
func (s *orderService) nextOrderNumber(ctx context.Context, restaurantID string) (int64, error) {
	var number int64
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		restaurant, err := tx.GetRestaurant(restaurantID)
		if err != nil {
			return err
		}
		number = restaurant.OrderCount
		return tx.SetRestaurantOrderCount(restaurantID, (restaurant.OrderCount+1)%orderNumberModulo)
	})
	if err != nil {
		return 0, mapTxError(err)
	}
	return number, nil
}

func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	ctx, span := startOrderSpan(ctx, "OrderService.Place", cmd.RestaurantID, cmd.OrderID)
	defer span.End()

	restaurantID, orderID, caller, err := requireOrderRef(cmd.RestaurantID, cmd.OrderID, cmd.CallerUID)
	if err != nil {
		return Order{}, err
	}
	if cmd.Tip < 0 || math.IsNaN(cmd.Tip) || math.IsInf(cmd.Tip, 0) {
		return Order{}, invalidArgument("tip must be a non-negative amount")
	}

	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	now := s.clock()
	placedAt := now
	if cmd.TimeToPickup != nil && !cmd.TimeToPickup.IsZero() {
		placedAt = cmd.TimeToPickup.UTC()
	}
	tip := RoundToMultiple(cmd.Tip, s.region.Multiple)
	memo := s.sanitizeMemo(cmd.Memo)

	var placed Order
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		order, err := tx.GetOrder(restaurantID, orderID)
		if err != nil {
			return err
		}
		if order.UID != caller {
			return fmt.Errorf("%w: order belongs to another customer", ErrPermissionDenied)
		}
		if order.Status != domain.OrderStatusValidationOK {
			return &TransitionError{From: order.Status, To: domain.OrderStatusOrderPlaced, Reason: "order is already placed or canceled"}
		}
		if err := applyOrderTotals(tx, orderTotalsUpdate{
			CustomerUID:  order.UID,
			RestaurantID: restaurantID,
			OwnerUID:     restaurant.UID,
			Items:        order.Items,
			PlacedAt:     placedAt,
			Positive:     true,
			Location:     s.region.TimeLocation(),
		}); err != nil {
			return err
		}

		order.Tip = tip
		order.TotalCharge = RoundToMultiple(order.Total+tip, s.region.Multiple)
		order.SendSMS = cmd.SendSMS
		order.Memo = memo
		order.TimePlaced = &placedAt
		order.StampStatus(domain.OrderStatusOrderPlaced, now)
		if err := tx.SetOrder(order); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return Order{}, mapTxError(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"restaurantID": restaurantID,
		"orderID":      orderID,
		"totalCharge":  placed.TotalCharge,
		"timePlaced":   placedAt,
	})
	notifyRestaurant(ctx, s.notifier, s.logger, RestaurantNotification{
		RestaurantID:   restaurantID,
		RestaurantName: restaurant.RestaurantName,
		OrderID:        orderID,
		OrderLabel:     orderLabel(placed.Number),
		TotalCharge:    placed.TotalCharge,
		Locale:         matchLocale(cmd.Locale, s.region.Locale).String(),
	})
	return placed, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	ctx, span := startOrderSpan(ctx, "OrderService.UpdateStatus", cmd.RestaurantID, cmd.OrderID)
	defer span.End()

	restaurantID, orderID, caller, err := requireOrderRef(cmd.RestaurantID, cmd.OrderID, cmd.CallerUID)
	if err != nil {
		return Order{}, err
	}
	if !cmd.Status.Valid() {
		return Order{}, invalidArgument(fmt.Sprintf("unknown status %d", int(cmd.Status)))
	}

	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if restaurant.UID != caller {
		return Order{}, fmt.Errorf("%w: only the restaurant owner can change order status", ErrPermissionDenied)
	}

	now := s.clock()
	loc := s.region.TimeLocation()
	var previous, updated Order
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx repositories.OrderTx) error {
		order, err := tx.GetOrder(restaurantID, orderID)
		if err != nil {
			return err
		}
		if err := checkOperatorTransition(order, cmd.Status); err != nil {
			return err
		}
		previous = order

		if cmd.Status == domain.OrderStatusOrderCanceled {
			if err := applyOrderTotals(tx, reversalUpdate(order, restaurant.UID, loc, now)); err != nil {
				return err
			}
		}
		if cmd.Status == domain.OrderStatusOrderAccepted {
			estimated := order.TimePlaced
			if cmd.TimeEstimated != nil && !cmd.TimeEstimated.IsZero() {
				t := cmd.TimeEstimated.UTC()
				estimated = &t
			}
			order.TimeEstimated = estimated
		}
		order.StampStatus(cmd.Status, now)
		if err := tx.SetOrder(order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, mapTxError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"restaurantID":   restaurantID,
		"orderID":        orderID,
		"previousStatus": previous.Status.String(),
		"currentStatus":  updated.Status.String(),
	})

	if key := statusMessageKey(cmd.Status, previous, now); key != "" && updated.SendSMS {
		locale := matchLocale(cmd.Locale, s.region.Locale)
		params := map[string]string{}
		if cmd.Status == domain.OrderStatusOrderAccepted && updated.TimeEstimated != nil {
			params["time"] = formatMessageTime(*updated.TimeEstimated, resolveLocation(cmd.Timezone, loc), locale)
		}
		notifyCustomer(ctx, s.notifier, s.logger, customerNotification(key, restaurant, updated, locale.String(), params))
	}
	return updated, nil
}

// checkOperatorTransition enforces the transition table and the paid-order guards.
func checkOperatorTransition(order Order, target OrderStatus) error {
	if !domain.CanOperatorTransition(order.Status, target) {
		return &TransitionError{From: order.Status, To: target}
	}
	if target == domain.OrderStatusOrderCanceled && order.Payment.Stripe != domain.PaymentStateNone {
		return fmt.Errorf("%w: paid orders are canceled through the payment coordinator", ErrPermissionDenied)
	}
	pendingCapture := order.Status == domain.OrderStatusOrderAccepted || order.Status == domain.OrderStatusReadyToPickup
	if pendingCapture && order.Payment.Stripe == domain.PaymentStatePending {
		return fmt.Errorf("%w: payment must be captured before changing this order", ErrPermissionDenied)
	}
	return nil
}

func (s *orderService) sanitizeMemo(memo string) string {
	memo = html.UnescapeString(s.memoPolicy.Sanitize(memo))
	memo = strings.TrimSpace(memo)
	if utf8.RuneCountInString(memo) > maxMemoRunes {
		memo = string([]rune(memo)[:maxMemoRunes])
	}
	return memo
}
