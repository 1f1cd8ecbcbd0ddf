package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ukisoft/ownplate/internal/platform/httpx"
	"github.com/ukisoft/ownplate/internal/platform/requestctx"
	"github.com/ukisoft/ownplate/internal/services"
)

// writeServiceError is the single place where service errors become HTTP responses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission-denied", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrInvalidArgument):
		httpx.WriteError(ctx, w, httpx.NewError("invalid-argument", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFailedPrecondition):
		apiErr := httpx.NewError("failed-precondition", err.Error(), http.StatusConflict)
		if status, ok := services.CurrentStatusOf(err); ok {
			apiErr = apiErr.WithDetails(map[string]any{
				"current_status":      int(status),
				"current_status_name": status.String(),
			})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrTransientConflict):
		httpx.WriteError(ctx, w, httpx.NewError("aborted", "order is busy, retry later", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrUnavailable):
		requestctx.Logger(ctx).Warn("dependency unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "a dependency is unavailable, retry later", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("deadline-exceeded", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("order request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process order request", http.StatusInternalServerError))
	}
}
