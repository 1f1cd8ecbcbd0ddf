package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "ownplate/requestctx/logger"
	traceContextKey  contextKey = "ownplate/requestctx/trace"
	orderContextKey  contextKey = "ownplate/requestctx/order"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// OrderRef identifies the order a request operates on.
type OrderRef struct {
	RestaurantID string
	OrderID      string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithOrder records the order addressed by the request and tags the context logger with it.
func WithOrder(ctx context.Context, ref OrderRef) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := Logger(ctx)
	if logger != noopLogger {
		ctx = WithLogger(ctx, logger.With(
			zap.String("restaurant_id", ref.RestaurantID),
			zap.String("order_id", ref.OrderID),
		))
	}
	return context.WithValue(ctx, orderContextKey, ref)
}

// Order returns the order reference stored by WithOrder.
func Order(ctx context.Context) (OrderRef, bool) {
	if ctx == nil {
		return OrderRef{}, false
	}
	ref, ok := ctx.Value(orderContextKey).(OrderRef)
	return ref, ok
}
