package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ukisoft/ownplate/internal/services"
)

// Message kinds, also used as AMQP routing keys.
const (
	KindOrderPlaced = "restaurant.order_placed"
	KindOrderStatus = "customer.order_status"
)

// Publisher delivers an encoded notification to a transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Message is the envelope published for every notification.
type Message struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	CreatedAt  time.Time         `json:"createdAt"`
	Payload    any               `json:"payload"`
	Attributes map[string]string `json:"-"`
}

// Encode renders the JSON body sent over the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s: %w", m.Kind, err)
	}
	return data, nil
}

type restaurantPayload struct {
	RestaurantID   string  `json:"restaurantId"`
	RestaurantName string  `json:"restaurantName"`
	OrderID        string  `json:"orderId"`
	OrderLabel     string  `json:"orderName"`
	TotalCharge    float64 `json:"totalCharge"`
	Locale         string  `json:"locale,omitempty"`
}

type customerPayload struct {
	MessageKey     string            `json:"messageKey"`
	RestaurantID   string            `json:"restaurantId"`
	RestaurantName string            `json:"restaurantName"`
	OrderID        string            `json:"orderId"`
	OrderLabel     string            `json:"orderName"`
	CustomerUID    string            `json:"uid"`
	PhoneNumber    string            `json:"phoneNumber,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
}

// Dispatcher turns order notifications into envelopes for a Publisher.
type Dispatcher struct {
	publisher Publisher
	clock     func() time.Time
	newID     func() string
}

var _ services.Notifier = (*Dispatcher)(nil)

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the envelope timestamp source.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithIDGenerator overrides the ULID message ids.
func WithIDGenerator(fn func() string) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// NewDispatcher constructs a Dispatcher publishing through publisher.
func NewDispatcher(publisher Publisher, opts ...DispatcherOption) (*Dispatcher, error) {
	if publisher == nil {
		return nil, errors.New("notify: publisher is required")
	}
	d := &Dispatcher{
		publisher: publisher,
		clock:     time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// NotifyRestaurant announces a placed order to the restaurant's operators.
func (d *Dispatcher) NotifyRestaurant(ctx context.Context, n services.RestaurantNotification) error {
	msg := d.envelope(KindOrderPlaced, restaurantPayload{
		RestaurantID:   n.RestaurantID,
		RestaurantName: n.RestaurantName,
		OrderID:        n.OrderID,
		OrderLabel:     n.OrderLabel,
		TotalCharge:    n.TotalCharge,
		Locale:         n.Locale,
	}, n.RestaurantID, n.OrderID)
	return d.publisher.Publish(ctx, msg)
}

// NotifyCustomer sends a status message to the customer who placed the order.
func (d *Dispatcher) NotifyCustomer(ctx context.Context, n services.CustomerNotification) error {
	if strings.TrimSpace(n.MessageKey) == "" {
		return errors.New("notify: message key is required")
	}
	msg := d.envelope(KindOrderStatus, customerPayload{
		MessageKey:     n.MessageKey,
		RestaurantID:   n.RestaurantID,
		RestaurantName: n.RestaurantName,
		OrderID:        n.OrderID,
		OrderLabel:     n.OrderLabel,
		CustomerUID:    n.CustomerUID,
		PhoneNumber:    n.PhoneNumber,
		Locale:         n.Locale,
		Params:         n.Params,
	}, n.RestaurantID, n.OrderID)
	msg.Attributes["messageKey"] = n.MessageKey
	return d.publisher.Publish(ctx, msg)
}

func (d *Dispatcher) envelope(kind string, payload any, restaurantID, orderID string) Message {
	id := d.newID()
	return Message{
		ID:        id,
		Kind:      kind,
		CreatedAt: d.clock().UTC(),
		Payload:   payload,
		Attributes: map[string]string{
			"kind":         kind,
			"messageId":    id,
			"restaurantId": restaurantID,
			"orderId":      orderID,
		},
	}
}
