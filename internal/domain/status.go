package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// OrderStatus enumerates the lifecycle states of an order. Values are the stored codes.
type OrderStatus int

const (
	OrderStatusNewOrder       OrderStatus = 100
	OrderStatusValidationOK   OrderStatus = 200
	OrderStatusOrderPlaced    OrderStatus = 300
	OrderStatusOrderAccepted  OrderStatus = 400
	OrderStatusReadyToPickup  OrderStatus = 600
	OrderStatusOrderCompleted OrderStatus = 700
	OrderStatusOrderCanceled  OrderStatus = 800
	OrderStatusError          OrderStatus = 900
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusNewOrder:       "new_order",
	OrderStatusValidationOK:   "validation_ok",
	OrderStatusOrderPlaced:    "order_placed",
	OrderStatusOrderAccepted:  "order_accepted",
	OrderStatusReadyToPickup:  "ready_to_pickup",
	OrderStatusOrderCompleted: "order_completed",
	OrderStatusOrderCanceled:  "order_canceled",
	OrderStatusError:          "error",
}

// orderTransitions lists the statuses reachable from each status. Terminal statuses map to nil.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNewOrder:      {OrderStatusValidationOK, OrderStatusError},
	OrderStatusValidationOK:  {OrderStatusOrderPlaced, OrderStatusError},
	OrderStatusOrderPlaced:   {OrderStatusOrderAccepted, OrderStatusOrderCanceled},
	OrderStatusOrderAccepted: {OrderStatusReadyToPickup, OrderStatusOrderPlaced, OrderStatusOrderCanceled},
	OrderStatusReadyToPickup: {OrderStatusOrderCompleted, OrderStatusOrderAccepted, OrderStatusOrderCanceled},
	OrderStatusOrderCompleted: nil,
	OrderStatusOrderCanceled:  nil,
	OrderStatusError:          nil,
}

// OrderStatuses returns every known status in code order.
func OrderStatuses() []OrderStatus {
	statuses := make([]OrderStatus, 0, len(orderStatusNames))
	for status := range orderStatusNames {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)
	return statuses
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether the status is part of the closed set.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// ParseOrderStatus accepts either the status name or its numeric code.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, false
	}
	if code, err := strconv.Atoi(raw); err == nil {
		status := OrderStatus(code)
		return status, status.Valid()
	}
	for status, name := range orderStatusNames {
		if name == raw {
			return status, true
		}
	}
	return 0, false
}

// NextStatuses returns a copy of the statuses reachable from s.
func NextStatuses(s OrderStatus) []OrderStatus {
	return slices.Clone(orderTransitions[s])
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// CanOperatorTransition reports whether a restaurant operator may move an order from one status
// to another. Operators only act on placed orders; validation_ok, order_placed from below and
// error are entered through validation and placement.
func CanOperatorTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusOrderPlaced, OrderStatusOrderAccepted, OrderStatusReadyToPickup:
		return CanTransition(from, to)
	}
	return false
}

// StatusTimestampField returns the order field stamped when entering status, if any.
func StatusTimestampField(status OrderStatus) string {
	switch status {
	case OrderStatusOrderPlaced:
		return "orderPlacedAt"
	case OrderStatusOrderAccepted:
		return "orderAcceptedAt"
	case OrderStatusReadyToPickup:
		return "readyToPickupAt"
	case OrderStatusOrderCompleted:
		return "orderCompletedAt"
	case OrderStatusOrderCanceled:
		return "orderCanceledAt"
	}
	return ""
}

// StampStatus sets the status and its timestamp field.
func (o *Order) StampStatus(status OrderStatus, at time.Time) {
	o.Status = status
	ts := at
	switch status {
	case OrderStatusOrderPlaced:
		o.OrderPlacedAt = &ts
	case OrderStatusOrderAccepted:
		o.OrderAcceptedAt = &ts
	case OrderStatusReadyToPickup:
		o.ReadyToPickupAt = &ts
	case OrderStatusOrderCompleted:
		o.OrderCompletedAt = &ts
	case OrderStatusOrderCanceled:
		o.OrderCanceledAt = &ts
	}
	o.UpdatedAt = &ts
}
