package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ukisoft/ownplate/internal/platform/requestctx"
)

// LogPublisher writes envelopes to the log instead of a broker. Used for local runs.
type LogPublisher struct {
	fallback *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{fallback: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, msg Message) error {
	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = p.fallback
	}
	logger.Info("notification",
		zap.String("message_id", msg.ID),
		zap.String("kind", msg.Kind),
		zap.Any("payload", msg.Payload),
	)
	return nil
}
