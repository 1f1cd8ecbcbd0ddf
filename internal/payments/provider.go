package payments

import (
	"context"
	"errors"
	"strings"
)

// AuthorizationStatus mirrors the processor-side state of a payment authorization.
type AuthorizationStatus string

const (
	StatusRequiresPaymentMethod AuthorizationStatus = "requires_payment_method"
	StatusRequiresConfirmation  AuthorizationStatus = "requires_confirmation"
	StatusRequiresAction        AuthorizationStatus = "requires_action"
	StatusProcessing            AuthorizationStatus = "processing"
	// StatusRequiresCapture is the only state from which an authorization can be captured.
	StatusRequiresCapture AuthorizationStatus = "requires_capture"
	StatusSucceeded       AuthorizationStatus = "succeeded"
	StatusCanceled        AuthorizationStatus = "canceled"
)

// ErrAuthorizationRequired is returned when a request carries no authorization id.
var ErrAuthorizationRequired = errors.New("payments: authorization id is required")

// AuthorizationRequest identifies an authorization on a connected account.
type AuthorizationRequest struct {
	AuthorizationID string
	// Account is the connected account the authorization was issued on. Empty uses the platform account.
	Account        string
	IdempotencyKey string
	Metadata       map[string]string
}

func (r AuthorizationRequest) validate() error {
	if strings.TrimSpace(r.AuthorizationID) == "" {
		return ErrAuthorizationRequired
	}
	return nil
}

// Authorization is the normalised view of a processor authorization.
type Authorization struct {
	ID               string
	Status           AuthorizationStatus
	Amount           int64
	AmountCapturable int64
	AmountReceived   int64
	Currency         string
}

// Capturable reports whether the authorization can be captured now.
func (a Authorization) Capturable() bool {
	return a.Status == StatusRequiresCapture
}

// Captured reports whether the funds have already been captured.
func (a Authorization) Captured() bool {
	return a.Status == StatusSucceeded
}

// ErrProcessorDisabled is returned by DisabledProcessor.
var ErrProcessorDisabled = errors.New("payments: processor not configured")

// DisabledProcessor stands in for the processor in local runs without a Stripe key. Orders
// without an authorization keep working; anything touching one fails.
type DisabledProcessor struct{}

func (DisabledProcessor) RetrieveAuthorization(context.Context, AuthorizationRequest) (Authorization, error) {
	return Authorization{}, ErrProcessorDisabled
}

func (DisabledProcessor) CaptureAuthorization(context.Context, AuthorizationRequest) (Authorization, error) {
	return Authorization{}, ErrProcessorDisabled
}

func (DisabledProcessor) CancelAuthorization(context.Context, AuthorizationRequest) (Authorization, error) {
	return Authorization{}, ErrProcessorDisabled
}
