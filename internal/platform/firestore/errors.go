package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies a Firestore RPC failure. It satisfies repositories.RepositoryError.
type Error struct {
	op   string
	code codes.Code
	err  error
}

func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the gRPC status code reported by Firestore.
func (e *Error) Code() codes.Code { return e.code }

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e.code == codes.NotFound }

// IsConflict reports whether the error represents contention or a failed precondition.
func (e *Error) IsConflict() bool {
	switch e.code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return true
	}
	return false
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	switch e.code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError annotates Firestore RPC errors with repository semantics. Context cancellations and
// errors that did not come from an RPC (for example, errors returned by a transaction body) are
// passed through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.OK, codes.Unknown:
		return err
	}
	return &Error{op: op, code: st.Code(), err: err}
}

// IsNotFound reports whether err is a Firestore NotFound failure.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
