package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProcessorConfig configures the StripeProcessor.
type StripeProcessorConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	// Intents replaces the PaymentIntents client; used by tests.
	Intents stripePaymentIntentAPI
}

// StripeProcessor retrieves, captures and cancels PaymentIntents on connected accounts.
type StripeProcessor struct {
	intents stripePaymentIntentAPI
	logger  StripeLogger
}

// NewStripeProcessor constructs a Stripe-backed processor.
func NewStripeProcessor(cfg StripeProcessorConfig) (*StripeProcessor, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProcessor{intents: intents, logger: logger}, nil
}

// RetrieveAuthorization fetches the current state of a PaymentIntent.
func (p *StripeProcessor) RetrieveAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if err := req.validate(); err != nil {
		return Authorization{}, err
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	intent, err := p.intents.Get(req.AuthorizationID, params)
	if err != nil {
		return Authorization{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	return stripeAuthorization(intent), nil
}

// CaptureAuthorization captures the full capturable amount of a PaymentIntent.
func (p *StripeProcessor) CaptureAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if err := req.validate(); err != nil {
		return Authorization{}, err
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
	}
	intent, err := p.intents.Capture(req.AuthorizationID, params)
	if err != nil {
		return Authorization{}, fmt.Errorf("stripe: capture payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripeAuthorization(intent), nil
}

// CancelAuthorization releases an uncaptured PaymentIntent.
func (p *StripeProcessor) CancelAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if err := req.validate(); err != nil {
		return Authorization{}, err
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	intent, err := p.intents.Cancel(req.AuthorizationID, params)
	if err != nil {
		return Authorization{}, fmt.Errorf("stripe: cancel payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.canceled", map[string]any{
		"paymentIntent": intent.ID,
	})
	return stripeAuthorization(intent), nil
}

func stripeAuthorization(intent *stripe.PaymentIntent) Authorization {
	if intent == nil {
		return Authorization{}
	}
	return Authorization{
		ID:               intent.ID,
		Status:           AuthorizationStatus(intent.Status),
		Amount:           intent.Amount,
		AmountCapturable: intent.AmountCapturable,
		AmountReceived:   intent.AmountReceived,
		Currency:         strings.ToUpper(string(intent.Currency)),
	}
}
