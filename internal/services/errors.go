package services

import (
	"errors"
	"fmt"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

var (
	// ErrUnauthenticated signals the caller identity is missing.
	ErrUnauthenticated = errors.New("order: unauthenticated")
	// ErrPermissionDenied signals the caller does not own the order or restaurant.
	ErrPermissionDenied = errors.New("order: permission denied")
	// ErrInvalidArgument signals a missing order or malformed input.
	ErrInvalidArgument = errors.New("order: invalid argument")
	// ErrFailedPrecondition signals the order is not in a state that allows the operation.
	ErrFailedPrecondition = errors.New("order: failed precondition")
	// ErrTransientConflict is returned when the store gives up retrying a contended transaction.
	ErrTransientConflict = errors.New("order: transaction conflict")
	// ErrUnavailable signals a dependency could not be reached.
	ErrUnavailable = errors.New("order: dependency unavailable")

	// ErrInvalidOrder, ErrUnknownMenuItem and ErrInvalidQuantity are raised while pricing.
	// They are recorded as the order's error status instead of being returned to callers.
	ErrInvalidOrder    = errors.New("pricing: invalid order")
	ErrUnknownMenuItem = errors.New("pricing: unknown menu item")
	ErrInvalidQuantity = errors.New("pricing: invalid quantity")
)

// TransitionError reports an order status change that the transition table rejects.
type TransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
	// Reason overrides the default message.
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (current status %s)", ErrFailedPrecondition, e.Reason, e.From)
	}
	return fmt.Sprintf("%s: cannot change status from %s to %s", ErrFailedPrecondition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrFailedPrecondition }

// CurrentStatusOf extracts the offending status from a transition failure.
func CurrentStatusOf(err error) (domain.OrderStatus, bool) {
	var transitionErr *TransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr.From, true
	}
	return 0, false
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrInvalidDocument) {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrTransientConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

// isServiceError reports whether err already carries one of the caller-facing sentinels.
func isServiceError(err error) bool {
	for _, target := range []error{ErrUnauthenticated, ErrPermissionDenied, ErrInvalidArgument, ErrFailedPrecondition, ErrTransientConflict, ErrUnavailable} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
